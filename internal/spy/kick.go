package spy

import (
	"context"
	"strings"

	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
	"github.com/park285/Spy-KakaoTalk-bot/internal/msgcat"
	"go.uber.org/zap"
)

// Kick removes the player whose membership matches. Creator only.
//
// After start: votes by and for the player are dropped. Kicking the spy ends
// the round as evaded; falling below the minimum aborts it unscored; otherwise
// the round resolves if everyone left has voted.
func (m *Manager) Kick(ctx context.Context, room string, requester User, membership string) error {
	membership = strings.TrimSpace(membership)
	return m.withRoom(room, func(s *roomSlot) error {
		g := s.game
		if g == nil {
			return m.reject(ctx, room, ErrNoActiveGame, "spy.no_game", nil)
		}
		if g.creatorID != requester.ID {
			return m.reject(ctx, room, ErrNotCreator, "spy.kick.not_creator", nil)
		}
		target := g.byMembership(membership)
		if target == nil {
			return m.reject(ctx, room, ErrPlayerNotFound, "spy.kick.not_found", nil)
		}

		g.remove(target.ID)
		g.dropVote(target.ID)
		for voter, voted := range g.votes {
			if voted == target.ID {
				g.dropVote(voter)
			}
		}
		g.touched = m.now()

		m.log.Info("spy_game_kick",
			zap.String("room", room),
			zap.Int64("user_id", target.ID),
			zap.String("membership", target.Membership),
			zap.Bool("started", g.started),
		)
		m.say(ctx, room, m.texts.Text("spy.kick.ok", msgcat.Vars{"Nickname": target.Nickname}))

		if !g.started {
			return nil
		}
		switch {
		case target.ID == g.spyID:
			m.spyKicked(ctx, s, target)
		case len(g.players) < m.minPlayers:
			m.log.Info("spy_round_aborted", zap.String("room", room), zap.String("round_id", g.roundID), zap.Int("players", len(g.players)))
			m.say(ctx, room, m.texts.Text("spy.kick.aborted", msgcat.Vars{"Min": m.minPlayers}))
			s.game = nil
		case len(g.players) > 0 && len(g.votes) == len(g.players):
			return m.resolve(ctx, s)
		}
		return nil
	})
}

// spyKicked scores a kicked spy as evading: the spy gains a point, everyone left loses one.
func (m *Manager) spyKicked(ctx context.Context, s *roomSlot, spy *Player) {
	g := s.game
	result := m.score(ctx, g, func(*Player) int { return -1 })

	spy.Points++
	m.persist(ctx, g, spy.Membership, spy.Points)
	result.Players = append(result.Players, domain.RoundPlayer{
		ID: spy.ID, Nickname: spy.Nickname, Membership: spy.Membership, Delta: 1, Points: spy.Points,
	})
	result.SpyKicked = true

	m.log.Info("spy_round_resolved",
		zap.String("room", g.room),
		zap.String("round_id", g.roundID),
		zap.Bool("spy_kicked", true),
	)
	m.finish(ctx, s, m.texts.Text("spy.result.spy_kicked", msgcat.Vars{"Spy": spy.Nickname}), result)
}
