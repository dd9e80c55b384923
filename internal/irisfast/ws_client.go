package irisfast

import "context"

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// WSClient is the inbound side of the Iris websocket.
type WSClient interface {
	Connect(ctx context.Context) error
	OnMessage(cb MessageCallback) int
	RemoveMessageCallback(id int)
	OnStateChange(cb StateCallback) int
	RemoveStateCallback(id int)
	State() WebSocketState
	Close(ctx context.Context) error
}

// FrameWriter is the outbound side used by the websocket egress.
type FrameWriter interface {
	WriteJSON(ctx context.Context, v any) error
	State() WebSocketState
}

var (
	_ WSClient    = (*WebSocket)(nil)
	_ FrameWriter = (*WebSocket)(nil)
)
