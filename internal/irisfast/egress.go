package irisfast

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Egress abstracts reply delivery over HTTP or WebSocket.
type Egress interface {
	SendText(ctx context.Context, room, message string) error
	SendPrivate(ctx context.Context, userID, message string) error
}

type transportMode string

const (
	transportHTTP transportMode = "http"
	transportWS   transportMode = "ws"
	transportAuto transportMode = "auto"
)

// PrivateRoom maps a user id to the room Iris uses for the bot's 1:1 chat with that user.
func PrivateRoom(userID string) string { return strings.TrimSpace(userID) }

// NewEgress creates an Egress based on mode. When mode is auto, WS is preferred when connected;
// on WS failure, it falls back to HTTP once. dryrun only logs frames.
func NewEgress(mode string, dryrun bool, c *Client, ws FrameWriter, logger *zap.Logger) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	var e Egress
	switch transportMode(strings.ToLower(strings.TrimSpace(mode))) {
	case transportWS:
		e = &wsEgress{ws: ws}
	case transportAuto:
		e = &autoEgress{ws: &wsEgress{ws: ws}, http: &httpEgress{c: c}, logger: logger}
	default:
		e = &httpEgress{c: c}
	}
	if dryrun {
		return &dryRunEgress{logger: logger}
	}
	return e
}

// httpEgress delegates to Client.
type httpEgress struct{ c *Client }

func (h *httpEgress) SendText(ctx context.Context, room, message string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendText(ctx, room, message)
}

func (h *httpEgress) SendPrivate(ctx context.Context, userID, message string) error {
	return h.SendText(ctx, PrivateRoom(userID), message)
}

// wsEgress writes ReplyRequest frames over WebSocket.
type wsEgress struct {
	ws FrameWriter
}

func (w *wsEgress) connected() bool {
	return w != nil && w.ws != nil && w.ws.State() == WSStateConnected
}

func (w *wsEgress) SendText(ctx context.Context, room, message string) error {
	if w == nil || w.ws == nil {
		return errors.New("ws egress not available")
	}
	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return w.ws.WriteJSON(dctx, &ReplyRequest{Type: "text", Room: room, Data: message})
}

func (w *wsEgress) SendPrivate(ctx context.Context, userID, message string) error {
	return w.SendText(ctx, PrivateRoom(userID), message)
}

// autoEgress prefers WS if available, with single fallback to HTTP.
type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) SendText(ctx context.Context, room, message string) error {
	if a.ws.connected() {
		if err := a.ws.SendText(ctx, room, message); err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("room", room))
	}
	return a.http.SendText(ctx, room, message)
}

func (a *autoEgress) SendPrivate(ctx context.Context, userID, message string) error {
	return a.SendText(ctx, PrivateRoom(userID), message)
}

type dryRunEgress struct{ logger *zap.Logger }

func (d *dryRunEgress) SendText(_ context.Context, room, message string) error {
	d.logger.Info("egress_dryrun", zap.String("room", room), zap.Int("len", len(message)))
	return nil
}

func (d *dryRunEgress) SendPrivate(ctx context.Context, userID, message string) error {
	return d.SendText(ctx, PrivateRoom(userID), message)
}
