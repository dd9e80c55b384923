package spy

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Spy-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Spy-KakaoTalk-bot/internal/util"
	"go.uber.org/zap"
)

const DefaultMinPlayers = 3

type Options struct {
	MinPlayers int
	IdleTTL    time.Duration // 0 disables expiry
	Picker     Picker
	Archive    RoundArchive
	Now        func() time.Time
	Logger     *zap.Logger
}

// Manager runs at most one game per room.
// Operations on one room are serialized; different rooms proceed in parallel.
type Manager struct {
	ledger  PointsLedger
	words   *WordList
	texts   Texts
	out     Messenger
	picker  Picker
	archive RoundArchive
	now     func() time.Time
	log     *zap.Logger

	minPlayers int
	idleTTL    time.Duration

	mu    sync.Mutex
	rooms map[string]*roomSlot
}

type roomSlot struct {
	mu   sync.Mutex
	refs int // callers holding or waiting on mu; guarded by Manager.mu
	game *game
}

// withRoom runs fn holding the room lock. A slot with no game is dropped once
// no caller references it.
func (m *Manager) withRoom(room string, fn func(s *roomSlot) error) error {
	m.mu.Lock()
	s, ok := m.rooms[room]
	if !ok {
		s = &roomSlot{}
		m.rooms[room] = s
	}
	s.refs++
	m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer m.release(room, s)
	return fn(s)
}

// release runs with s.mu held.
func (m *Manager) release(room string, s *roomSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 && s.game == nil {
		delete(m.rooms, room)
	}
}

// roomCount reports how many room slots are held.
func (m *Manager) roomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Snapshot returns a copy of the room's game, if any.
func (m *Manager) Snapshot(room string) (View, bool) {
	var (
		v  View
		ok bool
	)
	_ = m.withRoom(room, func(s *roomSlot) error {
		if s.game != nil {
			v, ok = s.game.view(), true
		}
		return nil
	})
	return v, ok
}

// Active reports whether room has a game.
func (m *Manager) Active(room string) bool {
	_, ok := m.Snapshot(room)
	return ok
}

func (m *Manager) say(ctx context.Context, room, text string) {
	if err := m.out.SendRoom(ctx, room, text); err != nil {
		m.log.Warn("spy_send_room_error", zap.String("room", room), zap.Error(err))
	}
}

func (m *Manager) whisper(ctx context.Context, room string, to User, text string) {
	if err := m.out.SendPrivate(ctx, to, text); err != nil {
		m.log.Warn("spy_send_private_error", zap.String("room", room), zap.Int64("user_id", to.ID), zap.Error(err))
	}
}

// reject replies with the message for key and returns err.
func (m *Manager) reject(ctx context.Context, room string, err error, key string, vars msgcat.Vars) error {
	m.say(ctx, room, m.texts.Text(key, vars))
	return err
}

func (m *Manager) Create(ctx context.Context, room string, creator User) error {
	return m.withRoom(room, func(s *roomSlot) error {
		if s.game != nil {
			return m.reject(ctx, room, ErrAlreadyActive, "spy.create.already_active", nil)
		}
		g := newGame(room, uuid.NewString(), creator, m.now())
		g.add(&Player{User: creator, Points: m.ledger.Points(ctx, creator.Membership)})
		s.game = g

		m.log.Info("spy_game_create",
			zap.String("room", room),
			zap.String("round_id", g.roundID),
			zap.Int64("creator_id", creator.ID),
		)
		m.say(ctx, room, m.texts.Text("spy.create.ok", msgcat.Vars{"Creator": creator.Nickname}))
		return nil
	})
}

func (m *Manager) Join(ctx context.Context, room string, u User) error {
	return m.withRoom(room, func(s *roomSlot) error {
		g := s.game
		if g == nil {
			return m.reject(ctx, room, ErrNoActiveGame, "spy.join.no_game", nil)
		}
		if g.started {
			return m.reject(ctx, room, ErrAlreadyStarted, "spy.join.started", nil)
		}
		if _, ok := g.players[u.ID]; ok {
			return m.reject(ctx, room, ErrAlreadyJoined, "spy.join.already_joined", nil)
		}
		g.add(&Player{User: u, Points: m.ledger.Points(ctx, u.Membership)})
		g.touched = m.now()

		m.log.Info("spy_game_join", zap.String("room", room), zap.Int64("user_id", u.ID), zap.Int("players", len(g.players)))
		m.say(ctx, room, m.texts.Text("spy.join.ok", msgcat.Vars{"Nickname": u.Nickname, "Count": len(g.players)}))
		return nil
	})
}

func (m *Manager) Start(ctx context.Context, room string, requester User) error {
	return m.withRoom(room, func(s *roomSlot) error {
		g := s.game
		if g == nil {
			return m.reject(ctx, room, ErrNoActiveGame, "spy.no_game", nil)
		}
		if g.creatorID != requester.ID {
			return m.reject(ctx, room, ErrNotCreator, "spy.start.not_creator", nil)
		}
		if g.started {
			return m.reject(ctx, room, ErrAlreadyStarted, "spy.start.started", nil)
		}
		if len(g.players) < m.minPlayers {
			return m.reject(ctx, room, ErrInsufficientPlayers, "spy.start.insufficient", msgcat.Vars{"Min": m.minPlayers})
		}

		g.started = true
		g.startedAt = m.now()
		g.touched = g.startedAt
		g.word = m.words.Pick(m.picker)
		g.ballot = append([]int64(nil), g.order...)

		roster := g.roster()
		spy := roster[m.picker.IntN(len(roster))]
		spy.IsSpy = true
		g.spyID = spy.ID
		g.spy = *spy

		spyText := m.texts.Text("spy.start.spy_private", nil)
		wordText := m.texts.Text("spy.start.word_private", msgcat.Vars{"Word": g.word})
		for _, p := range roster {
			if p.ID == g.spyID {
				m.whisper(ctx, room, p.User, spyText)
			} else {
				m.whisper(ctx, room, p.User, wordText)
			}
		}

		m.log.Info("spy_game_start",
			zap.String("room", room),
			zap.String("round_id", g.roundID),
			zap.Int("players", len(roster)),
		)
		m.sendList(ctx, g)
		m.say(ctx, room, m.texts.Text("spy.start.ok", nil))
		return nil
	})
}

// PlayersList replies with the ballot. Silent when no game has started.
func (m *Manager) PlayersList(ctx context.Context, room string) error {
	return m.withRoom(room, func(s *roomSlot) error {
		if s.game == nil || !s.game.started {
			return nil
		}
		m.sendList(ctx, s.game)
		return nil
	})
}

func (m *Manager) sendList(ctx context.Context, g *game) {
	var b strings.Builder
	b.WriteString(m.texts.Text("spy.list.header", nil))
	b.WriteByte('\n')
	for i, id := range g.ballot {
		p, ok := g.players[id]
		if !ok {
			continue
		}
		b.WriteString(m.texts.Text("spy.list.line", msgcat.Vars{"Number": i + 1, "Nickname": p.Nickname}))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(m.texts.Text("spy.list.footer", nil))
	m.say(ctx, g.room, b.String())
}

// Leaderboard ranks the current roster by ledger points.
func (m *Manager) Leaderboard(ctx context.Context, room string) error {
	return m.withRoom(room, func(s *roomSlot) error {
		g := s.game
		if g == nil {
			return m.reject(ctx, room, ErrNoActiveGame, "spy.no_game", nil)
		}
		points := m.ledger.Load(ctx)
		roster := g.roster()
		sort.SliceStable(roster, func(i, j int) bool {
			return points[roster[i].Membership] > points[roster[j].Membership]
		})

		header := m.texts.Text("spy.leaderboard.header", nil)
		var b strings.Builder
		b.WriteString(header)
		b.WriteByte('\n')
		for i, p := range roster {
			b.WriteString(m.texts.Text("spy.leaderboard.line", msgcat.Vars{
				"Rank":     i + 1,
				"Nickname": p.Nickname,
				"Points":   strconv.Itoa(points[p.Membership]),
			}))
			b.WriteByte('\n')
		}
		m.say(ctx, room, util.SeeMoreIfLong(b.String(), header))
		return nil
	})
}

// HelpText returns the command reference.
func (m *Manager) HelpText() string {
	return m.texts.Text("spy.help", nil)
}

func (m *Manager) Help(ctx context.Context, room string) error {
	text := m.HelpText()
	header, _, _ := strings.Cut(text, "\n")
	m.say(ctx, room, util.SeeMoreIfLong(text, header))
	return nil
}
