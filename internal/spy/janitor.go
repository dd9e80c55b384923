package spy

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep deletes games idle for longer than the idle TTL and announces it.
// It returns the number of games removed.
func (m *Manager) Sweep(ctx context.Context) int {
	if m.idleTTL <= 0 {
		return 0
	}
	m.mu.Lock()
	rooms := make([]string, 0, len(m.rooms))
	for room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	removed := 0
	now := m.now()
	for _, room := range rooms {
		_ = m.withRoom(room, func(s *roomSlot) error {
			if s.game == nil || now.Sub(s.game.touched) <= m.idleTTL {
				return nil
			}
			m.log.Info("spy_game_expired",
				zap.String("room", room),
				zap.String("round_id", s.game.roundID),
				zap.Duration("idle", now.Sub(s.game.touched)),
			)
			s.game = nil
			removed++
			m.say(ctx, room, m.texts.Text("spy.expired", nil))
			return nil
		})
	}
	return removed
}

// RunJanitor sweeps periodically until ctx is done. No-op without an idle TTL.
func (m *Manager) RunJanitor(ctx context.Context) {
	if m.idleTTL <= 0 {
		return
	}
	interval := m.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(ctx)
		}
	}
}
