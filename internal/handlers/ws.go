package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/middleware"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type clientKey struct{}

// join subscribes the calling websocket client to the events of the store
// named in args.
func (h *Handler) join(ctx context.Context, args gjson.Result) {
	c, ok := ctx.Value(clientKey{}).(*ws.Client)
	if !ok {
		return
	}
	store := args.Get("app").String()
	if store == "" {
		store = apps.DefaultName
	}
	h.hub.Join(store, c)
}

func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.Client)
	h.hub.Register(client)
	go client.WritePump()

	h.logger.Info("bridge client connected", "client", client.ID(), "name", client.Name)
	base := context.WithValue(context.WithoutCancel(r.Context()), clientKey{}, client)
	client.ReadPump(base, func(ctx context.Context, raw []byte) {
		req, err := ParseRequest(raw)
		if err != nil {
			h.hub.Push(client, h.encode(Response{ID: req.ID, Error: nativeerr.From(err)}))
			return
		}
		if h.async[req.Method] {
			go func() {
				h.hub.Push(client, h.encode(h.Call(ctx, req)))
			}()
			return
		}
		h.hub.Push(client, h.encode(h.Call(ctx, req)))
	})
	h.logger.Info("bridge client disconnected", "client", client.ID())
}
