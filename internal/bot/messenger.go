package bot

import (
	"context"
	"strings"

	"github.com/park285/Spy-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Spy-KakaoTalk-bot/internal/spy"
)

// Messenger delivers game replies through the Iris egress without coupling the game to the transport.
type Messenger struct {
	out irisfast.Egress
}

func NewMessenger(out irisfast.Egress) *Messenger {
	return &Messenger{out: out}
}

func (m *Messenger) SendRoom(ctx context.Context, room, text string) error {
	if m == nil || m.out == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	return m.out.SendText(ctx, room, text)
}

// SendPrivate addresses the player's own chat, keyed by the Iris user id.
func (m *Messenger) SendPrivate(ctx context.Context, to spy.User, text string) error {
	if m == nil || m.out == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	return m.out.SendPrivate(ctx, to.Membership, text)
}

var _ spy.Messenger = (*Messenger)(nil)
