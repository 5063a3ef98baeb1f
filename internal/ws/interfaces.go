package ws

type WSClient interface {
	ID() string
	GetSend() chan []byte
	WritePump()
}

type WSHub interface {
	Join(store string, c WSClient)
	Unregister(c WSClient)
	Broadcast(store string, data []byte)
	Push(c WSClient, data []byte) bool
}
