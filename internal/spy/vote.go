package spy

import (
	"context"
	"strings"

	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
	"github.com/park285/Spy-KakaoTalk-bot/internal/msgcat"
	"go.uber.org/zap"
)

// Vote records voter's choice of ballot number (1-based). The last vote per
// voter wins. Once every roster player has voted the round resolves.
func (m *Manager) Vote(ctx context.Context, room string, voter User, choice int) error {
	return m.withRoom(room, func(s *roomSlot) error {
		g := s.game
		if g == nil || !g.started {
			return m.reject(ctx, room, ErrNoActiveGame, "spy.no_game", nil)
		}
		// keeps len(votes) <= len(players), so the all-voted check below can't fire early
		if _, ok := g.players[voter.ID]; !ok {
			return m.reject(ctx, room, ErrNotInGame, "spy.vote.not_in_game", nil)
		}
		if choice < 1 || choice > len(g.ballot) {
			return m.reject(ctx, room, ErrOutOfRange, "spy.vote.out_of_range", msgcat.Vars{"Max": len(g.ballot)})
		}
		target, ok := g.players[g.ballot[choice-1]]
		if !ok {
			return m.reject(ctx, room, ErrPlayerNotFound, "spy.vote.player_gone", nil)
		}

		g.setVote(voter.ID, target.ID)
		g.touched = m.now()
		m.log.Debug("spy_vote",
			zap.String("room", room),
			zap.Int64("voter_id", voter.ID),
			zap.Int64("target_id", target.ID),
			zap.Int("votes", len(g.votes)),
		)
		m.say(ctx, room, m.texts.Text("spy.vote.ok", msgcat.Vars{"Nickname": target.Nickname}))

		if len(g.votes) == len(g.players) {
			return m.resolve(ctx, s)
		}
		return nil
	})
}

// resolve scores the round and removes the game. With no votes at all the
// game is kept and ErrNoVotes returned.
func (m *Manager) resolve(ctx context.Context, s *roomSlot) error {
	g := s.game
	suspectID, count, ok := Tally(g.voters, g.votes)
	if !ok {
		m.say(ctx, g.room, m.texts.Text("spy.result.invalid", nil))
		return ErrNoVotes
	}
	caught := suspectID == g.spyID
	suspect := g.players[suspectID]

	result := m.score(ctx, g, func(p *Player) int { return Delta(p.ID, g.spyID, caught) })
	result.SuspectID = suspectID
	result.SuspectName = suspect.Nickname
	result.Caught = caught

	var head string
	if caught {
		head = m.texts.Text("spy.result.caught", msgcat.Vars{"Suspect": suspect.Nickname})
	} else {
		head = m.texts.Text("spy.result.missed", msgcat.Vars{"Suspect": suspect.Nickname, "Spy": g.spy.Nickname})
	}
	m.finish(ctx, s, head, result)

	m.log.Info("spy_round_resolved",
		zap.String("room", g.room),
		zap.String("round_id", g.roundID),
		zap.Int64("suspect_id", suspectID),
		zap.Int("suspect_votes", count),
		zap.Bool("caught", caught),
	)
	return nil
}

// score applies delta to every roster player and persists the new totals.
func (m *Manager) score(ctx context.Context, g *game, delta func(p *Player) int) domain.RoundResult {
	result := domain.RoundResult{
		RoundID:   g.roundID,
		Room:      g.room,
		Word:      g.word,
		SpyID:     g.spyID,
		SpyName:   g.spy.Nickname,
		StartedAt: g.startedAt,
		EndedAt:   m.now(),
	}
	for _, p := range g.roster() {
		d := delta(p)
		p.Points += d
		m.persist(ctx, g, p.Membership, p.Points)
		result.Players = append(result.Players, domain.RoundPlayer{
			ID: p.ID, Nickname: p.Nickname, Membership: p.Membership, Delta: d, Points: p.Points,
		})
	}
	return result
}

func (m *Manager) persist(ctx context.Context, g *game, membership string, points int) {
	if err := m.ledger.Upsert(ctx, membership, points); err != nil {
		m.log.Error("spy_points_persist_error",
			zap.String("room", g.room),
			zap.String("membership", membership),
			zap.Int("points", points),
			zap.Error(err),
		)
	}
}

// finish announces the outcome, archives it and deletes the game.
func (m *Manager) finish(ctx context.Context, s *roomSlot, head string, result domain.RoundResult) {
	g := s.game
	lines := []string{
		head,
		m.texts.Text("spy.result.word", msgcat.Vars{"Word": g.word}),
		"",
		m.texts.Text("spy.result.footer", nil),
	}
	m.say(ctx, g.room, strings.Join(lines, "\n"))

	if m.archive != nil {
		if err := m.archive.SaveRound(ctx, result); err != nil {
			m.log.Warn("spy_round_archive_error", zap.String("round_id", result.RoundID), zap.Error(err))
		}
	}
	s.game = nil
}
