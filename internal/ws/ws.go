// Package ws carries bridge calls and events over websocket connections.
package ws

import "time"

const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 1 << 20
	SendBuffer     = 256
)
