package bot

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/park285/Spy-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Spy-KakaoTalk-bot/internal/spy"
	"go.uber.org/zap"
)

// Base command words, after the prefix.
var baseCommands = map[string]struct{}{
	"جس":    {},
	"جاسوس": {},
}

const (
	cmdCreate      = "انشاء"
	cmdJoin        = "انضم"
	cmdStart       = "بدء"
	cmdList        = "قائمه"
	cmdKick        = "طرد"
	cmdLeaderboard = "ترتيبي"
	cmdHelp        = "مساعده"
)

// Game is what the router dispatches to; *spy.Manager implements it.
type Game interface {
	Create(ctx context.Context, room string, creator spy.User) error
	Join(ctx context.Context, room string, u spy.User) error
	Start(ctx context.Context, room string, requester spy.User) error
	PlayersList(ctx context.Context, room string) error
	Vote(ctx context.Context, room string, voter spy.User, choice int) error
	Kick(ctx context.Context, room string, requester spy.User, membership string) error
	Leaderboard(ctx context.Context, room string) error
	Help(ctx context.Context, room string) error
}

var _ Game = (*spy.Manager)(nil)

type RouterOptions struct {
	Prefix      string
	RoomAllowed func(room string) bool
	Logger      *zap.Logger
}

// Router turns inbound Iris messages into game operations.
type Router struct {
	prefix  string
	allowed func(room string) bool
	game    Game
	texts   spy.Texts
	out     spy.Messenger
	log     *zap.Logger
	wg      sync.WaitGroup

	qmu    sync.Mutex
	queues map[string]*roomQueue
}

// roomQueue holds a room's commands in arrival order. A single worker drains
// it and removes it from the router once empty.
type roomQueue struct {
	pending []*irisfast.Message
}

func NewRouter(game Game, texts spy.Texts, out spy.Messenger, opts RouterOptions) *Router {
	r := &Router{
		prefix:  opts.Prefix,
		allowed: opts.RoomAllowed,
		game:    game,
		texts:   texts,
		out:     out,
		log:     opts.Logger,
		queues:  make(map[string]*roomQueue),
	}
	if r.prefix == "" {
		r.prefix = "!"
	}
	if r.allowed == nil {
		r.allowed = func(string) bool { return true }
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// OnMessage is the websocket callback. Commands for one room run one at a
// time in arrival order; different rooms run concurrently.
func (r *Router) OnMessage(msg *irisfast.Message) {
	if !r.accepts(msg) {
		return
	}
	r.wg.Add(1)
	r.qmu.Lock()
	defer r.qmu.Unlock()
	q, ok := r.queues[msg.Room]
	if ok {
		q.pending = append(q.pending, msg)
		return
	}
	q = &roomQueue{pending: []*irisfast.Message{msg}}
	r.queues[msg.Room] = q
	go r.drain(msg.Room, q)
}

func (r *Router) drain(room string, q *roomQueue) {
	for {
		r.qmu.Lock()
		if len(q.pending) == 0 {
			delete(r.queues, room)
			r.qmu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		r.qmu.Unlock()

		if err := r.Handle(context.Background(), msg); err != nil {
			r.log.Debug("spy_command_rejected", zap.String("room", room), zap.Error(err))
		}
		r.wg.Done()
	}
}

// Wait blocks until in-flight commands finish.
func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) accepts(msg *irisfast.Message) bool {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return false
	}
	if !r.allowed(msg.Room) {
		r.log.Debug("ignore_room", zap.String("room", msg.Room))
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(msg.Msg), r.prefix)
}

// Handle parses and dispatches one message. Game rejections come back as the
// game's sentinel errors after the reply has been sent.
func (r *Router) Handle(ctx context.Context, msg *irisfast.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("spy_command_panic",
				zap.String("room", msg.Room),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			_ = r.out.SendRoom(ctx, msg.Room, r.texts.Text("spy.internal_error", nil))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if !r.accepts(msg) {
		return nil
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), r.prefix))
	parts := strings.Fields(raw)
	if len(parts) < 2 {
		return nil
	}
	if _, ok := baseCommands[parts[0]]; !ok {
		return nil
	}
	user, ok := userFromMessage(msg)
	if !ok {
		r.log.Warn("spy_unknown_sender", zap.String("room", msg.Room))
		return nil
	}
	room := msg.Room
	r.log.Debug("spy_command", zap.String("room", room), zap.Int64("user_id", user.ID), zap.String("cmd", parts[1]))

	switch parts[1] {
	case cmdCreate:
		return r.game.Create(ctx, room, user)
	case cmdJoin:
		return r.game.Join(ctx, room, user)
	case cmdStart:
		return r.game.Start(ctx, room, user)
	case cmdList:
		return r.game.PlayersList(ctx, room)
	case cmdKick:
		if len(parts) < 3 {
			return r.out.SendRoom(ctx, room, r.texts.Text("spy.kick.usage", nil))
		}
		return r.game.Kick(ctx, room, user, parts[2])
	case cmdLeaderboard:
		return r.game.Leaderboard(ctx, room)
	case cmdHelp:
		return r.game.Help(ctx, room)
	default:
		n, ok := parseNumber(parts[1])
		if !ok {
			return nil
		}
		return r.game.Vote(ctx, room, user, n)
	}
}

// userFromMessage derives the player identity from the Iris user id.
// Non-numeric ids are hashed so the session id stays an int64.
func userFromMessage(msg *irisfast.Message) (spy.User, bool) {
	uid := msg.UserID()
	if uid == "" {
		return spy.User{}, false
	}
	id, err := strconv.ParseInt(uid, 10, 64)
	if err != nil {
		h := fnv.New64a()
		_, _ = h.Write([]byte(uid))
		id = int64(h.Sum64() & (1<<63 - 1))
	}
	name := msg.SenderName()
	if name == "" {
		name = uid
	}
	return spy.User{ID: id, Nickname: name, Membership: uid}, true
}

// parseNumber accepts ASCII, Arabic-Indic and Extended Arabic-Indic digits.
func parseNumber(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		default:
			b.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			// too large to be a ballot number but still numeric
			return int(^uint(0) >> 1), true
		}
		return 0, false
	}
	return n, true
}
