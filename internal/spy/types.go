package spy

import (
	"context"
	"math/rand"
	"time"

	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
	"github.com/park285/Spy-KakaoTalk-bot/internal/msgcat"
)

// User identifies the sender of a command.
type User struct {
	ID         int64  // session id
	Nickname   string
	Membership string // stable ledger key
}

// Player is a User on a room roster.
type Player struct {
	User
	Points int // ledger total at join time, updated on resolution
	IsSpy  bool
}

// PointsLedger is the durable membership → points store.
// Load and Points never fail; backends log and degrade.
type PointsLedger interface {
	Load(ctx context.Context) map[string]int
	Points(ctx context.Context, membership string) int
	Upsert(ctx context.Context, membership string, points int) error
}

// RoundArchive receives every scored round.
type RoundArchive interface {
	SaveRound(ctx context.Context, r domain.RoundResult) error
}

// Messenger carries replies back to the chat.
type Messenger interface {
	SendRoom(ctx context.Context, room, text string) error
	SendPrivate(ctx context.Context, to User, text string) error
}

// Texts renders reply templates.
type Texts interface {
	Text(key string, vars msgcat.Vars) string
}

// Picker returns a uniform index in [0, n).
type Picker interface {
	IntN(n int) int
}

type globalPicker struct{}

func (globalPicker) IntN(n int) int { return rand.Intn(n) }

// game is the per-room state. Guarded by its roomSlot mutex.
type game struct {
	room      string
	roundID   string
	creatorID int64
	players   map[int64]*Player
	order     []int64 // join order
	started   bool
	spyID     int64
	spy       Player // copy taken at start, survives kicks
	word      string
	votes     map[int64]int64 // voter -> voted-for
	voters    []int64         // first-vote order
	ballot    []int64         // roster snapshot at start; ballot n = ballot[n-1]
	startedAt time.Time
	touched   time.Time
}

func newGame(room, roundID string, creator User, now time.Time) *game {
	return &game{
		room:      room,
		roundID:   roundID,
		creatorID: creator.ID,
		players:   make(map[int64]*Player),
		votes:     make(map[int64]int64),
		touched:   now,
	}
}

func (g *game) add(p *Player) {
	g.players[p.ID] = p
	g.order = append(g.order, p.ID)
}

func (g *game) remove(id int64) {
	delete(g.players, id)
	for i, pid := range g.order {
		if pid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// roster returns players in join order.
func (g *game) roster() []*Player {
	out := make([]*Player, 0, len(g.order))
	for _, id := range g.order {
		if p, ok := g.players[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (g *game) byMembership(membership string) *Player {
	for _, p := range g.roster() {
		if p.Membership == membership {
			return p
		}
	}
	return nil
}

func (g *game) setVote(voter, target int64) {
	if _, ok := g.votes[voter]; !ok {
		g.voters = append(g.voters, voter)
	}
	g.votes[voter] = target
}

func (g *game) dropVote(voter int64) {
	if _, ok := g.votes[voter]; !ok {
		return
	}
	delete(g.votes, voter)
	for i, v := range g.voters {
		if v == voter {
			g.voters = append(g.voters[:i], g.voters[i+1:]...)
			break
		}
	}
}

// View is a read-only copy of a room's game.
type View struct {
	Room      string
	RoundID   string
	CreatorID int64
	Started   bool
	SpyID     int64
	Word      string
	Players   []Player
	Votes     map[int64]int64
	Ballot    []int64
}

func (g *game) view() View {
	v := View{
		Room:      g.room,
		RoundID:   g.roundID,
		CreatorID: g.creatorID,
		Started:   g.started,
		SpyID:     g.spyID,
		Word:      g.word,
		Votes:     make(map[int64]int64, len(g.votes)),
		Ballot:    append([]int64(nil), g.ballot...),
	}
	for _, p := range g.roster() {
		v.Players = append(v.Players, *p)
	}
	for k, t := range g.votes {
		v.Votes[k] = t
	}
	return v
}
