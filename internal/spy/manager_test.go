package spy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
	"github.com/park285/Spy-KakaoTalk-bot/internal/msgcat"
)

type memLedger struct {
	mu     sync.Mutex
	points map[string]int
	fail   bool
}

func newMemLedger() *memLedger { return &memLedger{points: map[string]int{}} }

func (l *memLedger) Load(context.Context) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.points))
	for k, v := range l.points {
		out[k] = v
	}
	return out
}

func (l *memLedger) Points(_ context.Context, membership string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.points[membership]
}

func (l *memLedger) Upsert(_ context.Context, membership string, points int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("disk full")
	}
	l.points[membership] = points
	return nil
}

type sent struct {
	room string
	text string
}

type recorder struct {
	mu      sync.Mutex
	room    []sent
	private map[int64][]string
}

func newRecorder() *recorder { return &recorder{private: map[int64][]string{}} }

func (r *recorder) SendRoom(_ context.Context, room, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = append(r.room, sent{room: room, text: text})
	return nil
}

func (r *recorder) SendPrivate(_ context.Context, to User, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.private[to.ID] = append(r.private[to.ID], text)
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.room) == 0 {
		return ""
	}
	return r.room[len(r.room)-1].text
}

// scripted returns queued values (mod n), then 0.
type scripted struct{ next []int }

func (s *scripted) IntN(n int) int {
	if len(s.next) == 0 {
		return 0
	}
	v := s.next[0]
	s.next = s.next[1:]
	return v % n
}

type archiveRec struct {
	rounds []domain.RoundResult
}

func (a *archiveRec) SaveRound(_ context.Context, r domain.RoundResult) error {
	a.rounds = append(a.rounds, r)
	return nil
}

type fixture struct {
	m       *Manager
	ledger  *memLedger
	out     *recorder
	picker  *scripted
	archive *archiveRec
	clock   time.Time
}

func newFixture(t *testing.T, picks ...int) *fixture {
	t.Helper()
	texts, err := msgcat.New("", msgcat.Vars{"Prefix": "!"})
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	words, err := NewWordList([]string{"قطة", "كلب", "بحر"})
	if err != nil {
		t.Fatalf("NewWordList: %v", err)
	}
	f := &fixture{
		ledger:  newMemLedger(),
		out:     newRecorder(),
		picker:  &scripted{next: picks},
		archive: &archiveRec{},
		clock:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.m = NewManager(f.ledger, words, texts, f.out, Options{
		Picker:  f.picker,
		Archive: f.archive,
		IdleTTL: 10 * time.Minute,
		Now:     func() time.Time { return f.clock },
	})
	return f
}

var (
	alice = User{ID: 1, Nickname: "A", Membership: "m-a"}
	bob   = User{ID: 2, Nickname: "B", Membership: "m-b"}
	carol = User{ID: 3, Nickname: "C", Membership: "m-c"}
	dave  = User{ID: 4, Nickname: "D", Membership: "m-d"}
)

const room = "R"

func (f *fixture) lobby(t *testing.T, users ...User) {
	t.Helper()
	ctx := context.Background()
	if err := f.m.Create(ctx, room, users[0]); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, u := range users[1:] {
		if err := f.m.Join(ctx, room, u); err != nil {
			t.Fatalf("Join %s: %v", u.Nickname, err)
		}
	}
}

func (f *fixture) started(t *testing.T, users ...User) {
	t.Helper()
	f.lobby(t, users...)
	if err := f.m.Start(context.Background(), room, users[0]); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestCreateTwiceKeepsFirstGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lobby(t, alice, bob)
	before, _ := f.m.Snapshot(room)

	if err := f.m.Create(ctx, room, carol); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	after, ok := f.m.Snapshot(room)
	if !ok || after.CreatorID != alice.ID || len(after.Players) != 2 || after.RoundID != before.RoundID {
		t.Fatalf("first game changed: %+v", after)
	}
	if !strings.Contains(f.out.last(), "هناك لعبة نشطة") {
		t.Fatalf("unexpected reply: %q", f.out.last())
	}
}

func TestCreateLoadsLedgerPoints(t *testing.T) {
	f := newFixture(t)
	f.ledger.points["m-a"] = 7
	f.lobby(t, alice)
	v, _ := f.m.Snapshot(room)
	if v.Players[0].Points != 7 {
		t.Fatalf("points = %d, want 7", v.Players[0].Points)
	}
}

func TestJoinRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.m.Join(ctx, room, bob); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("join without game: %v", err)
	}
	f.lobby(t, alice, bob)
	if err := f.m.Join(ctx, room, bob); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("duplicate join: %v", err)
	}
	v, _ := f.m.Snapshot(room)
	if len(v.Players) != 2 {
		t.Fatalf("roster = %d, want 2", len(v.Players))
	}
	if err := f.m.Join(ctx, room, carol); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := f.out.last(); !strings.Contains(got, "(اللاعبين: 3)") {
		t.Fatalf("join reply should report roster size: %q", got)
	}
	if err := f.m.Start(ctx, room, alice); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.m.Join(ctx, room, dave); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("join after start: %v", err)
	}
	v, _ = f.m.Snapshot(room)
	if len(v.Players) != 3 {
		t.Fatalf("roster changed after rejected join: %d", len(v.Players))
	}
}

func TestStartRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.m.Start(ctx, room, alice); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("start without game: %v", err)
	}
	f.lobby(t, alice, bob)
	if err := f.m.Start(ctx, room, alice); !errors.Is(err, ErrInsufficientPlayers) {
		t.Fatalf("start with 2: %v", err)
	}
	if v, _ := f.m.Snapshot(room); v.Started {
		t.Fatalf("game should not be started")
	}
	if err := f.m.Join(ctx, room, carol); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := f.m.Start(ctx, room, bob); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("start by non-creator: %v", err)
	}
	if err := f.m.Start(ctx, room, alice); err != nil {
		t.Fatalf("start with 3: %v", err)
	}
	if err := f.m.Start(ctx, room, alice); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: %v", err)
	}
}

func TestStartDisclosesWordPrivately(t *testing.T) {
	f := newFixture(t, 0, 1) // word "قطة", spy = second player
	f.started(t, alice, bob, carol)

	v, _ := f.m.Snapshot(room)
	if v.SpyID != bob.ID || v.Word != "قطة" {
		t.Fatalf("spy=%d word=%q", v.SpyID, v.Word)
	}
	spies := 0
	for _, p := range v.Players {
		if p.IsSpy {
			spies++
		}
	}
	if spies != 1 {
		t.Fatalf("expected exactly one spy, got %d", spies)
	}

	spyMsgs := f.out.private[bob.ID]
	if len(spyMsgs) != 1 || strings.Contains(spyMsgs[0], "قطة") {
		t.Fatalf("spy message leaked the word: %v", spyMsgs)
	}
	a, c := f.out.private[alice.ID], f.out.private[carol.ID]
	if len(a) != 1 || len(c) != 1 || a[0] != c[0] || !strings.Contains(a[0], "قطة") {
		t.Fatalf("innocents should get the same word: %v %v", a, c)
	}
}

func TestPlayersListNumbersRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lobby(t, alice, bob, carol)

	n := len(f.out.room)
	if err := f.m.PlayersList(ctx, room); err != nil {
		t.Fatalf("PlayersList: %v", err)
	}
	if len(f.out.room) != n {
		t.Fatalf("list before start should be silent")
	}
	if err := f.m.Start(ctx, room, alice); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.m.PlayersList(ctx, room); err != nil {
		t.Fatalf("PlayersList: %v", err)
	}
	got := f.out.last()
	for _, want := range []string{"1. A", "2. B", "3. C", "(!جس 1)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("list missing %q: %q", want, got)
		}
	}
}

func TestVoteRangeAndOverwrite(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()
	f.started(t, alice, bob, carol)

	for _, choice := range []int{0, 4, -1} {
		if err := f.m.Vote(ctx, room, alice, choice); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("vote %d: %v", choice, err)
		}
	}
	if v, _ := f.m.Snapshot(room); len(v.Votes) != 0 {
		t.Fatalf("rejected votes changed state: %v", v.Votes)
	}

	if err := f.m.Vote(ctx, room, alice, 2); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.m.Vote(ctx, room, alice, 3); err != nil {
		t.Fatalf("revote: %v", err)
	}
	v, _ := f.m.Snapshot(room)
	if len(v.Votes) != 1 || v.Votes[alice.ID] != carol.ID {
		t.Fatalf("last vote should win: %v", v.Votes)
	}
	if !strings.Contains(f.out.last(), "تم التصويت للاعب C") {
		t.Fatalf("vote reply: %q", f.out.last())
	}
}

func TestVoteRequiresStartedGameAndRosterMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.Vote(ctx, room, alice, 1); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("vote without game: %v", err)
	}
	f.lobby(t, alice, bob, carol)
	if err := f.m.Vote(ctx, room, alice, 1); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("vote before start: %v", err)
	}
	if err := f.m.Start(ctx, room, alice); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.m.Vote(ctx, room, dave, 1); !errors.Is(err, ErrNotInGame) {
		t.Fatalf("outsider vote: %v", err)
	}
}

func TestResolutionSpyCaught(t *testing.T) {
	f := newFixture(t, 0, 1) // word "قطة", spy = B
	ctx := context.Background()
	f.started(t, alice, bob, carol)

	if err := f.m.Vote(ctx, room, alice, 1); err != nil {
		t.Fatalf("A vote: %v", err)
	}
	if err := f.m.Vote(ctx, room, bob, 2); err != nil {
		t.Fatalf("B vote: %v", err)
	}
	if !f.m.Active(room) {
		t.Fatalf("resolved before everyone voted")
	}
	if err := f.m.Vote(ctx, room, carol, 2); err != nil {
		t.Fatalf("C vote: %v", err)
	}

	if f.m.Active(room) {
		t.Fatalf("game should be removed after resolution")
	}
	want := map[string]int{"m-a": 1, "m-b": -1, "m-c": 1}
	for k, v := range want {
		if got := f.ledger.points[k]; got != v {
			t.Fatalf("%s points = %d, want %d", k, got, v)
		}
	}
	final := f.out.last()
	if !strings.Contains(final, "تم كشف الجاسوس! B") || !strings.Contains(final, "الكلمة كانت: قطة") {
		t.Fatalf("final reply: %q", final)
	}
	if len(f.archive.rounds) != 1 || !f.archive.rounds[0].Caught || f.archive.rounds[0].SuspectID != bob.ID {
		t.Fatalf("archive: %+v", f.archive.rounds)
	}
}

func TestResolutionSpyEvades(t *testing.T) {
	f := newFixture(t, 0, 2) // spy = C
	ctx := context.Background()
	f.ledger.points = map[string]int{"m-a": 5, "m-b": 5, "m-c": 5, "m-d": 5}
	f.started(t, alice, bob, carol, dave)

	// B is wrongly accused by three votes.
	for _, u := range []User{alice, carol, dave} {
		if err := f.m.Vote(ctx, room, u, 2); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if err := f.m.Vote(ctx, room, bob, 1); err != nil {
		t.Fatalf("vote: %v", err)
	}

	want := map[string]int{"m-a": 4, "m-b": 4, "m-c": 6, "m-d": 4}
	sum := 0
	for k, v := range want {
		got := f.ledger.points[k]
		if got != v {
			t.Fatalf("%s points = %d, want %d", k, got, v)
		}
		sum += got - 5
	}
	if sum != -2 { // (N-1)*(-1) + 1 with N=4
		t.Fatalf("delta sum = %d", sum)
	}
	final := f.out.last()
	if !strings.Contains(final, "B ليس الجاسوس") || !strings.Contains(final, "الجاسوس الحقيقي كان: C") {
		t.Fatalf("final reply: %q", final)
	}
}

func TestResolutionPersistFailureStillEndsGame(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()
	f.started(t, alice, bob, carol)
	f.ledger.fail = true
	for _, u := range []User{alice, bob, carol} {
		if err := f.m.Vote(ctx, room, u, 1); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if f.m.Active(room) {
		t.Fatalf("game should end even when the ledger fails")
	}
}

func TestKickRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.Kick(ctx, room, alice, "m-b"); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("kick without game: %v", err)
	}
	f.lobby(t, alice, bob, carol)
	if err := f.m.Kick(ctx, room, bob, "m-c"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("kick by non-creator: %v", err)
	}
	if err := f.m.Kick(ctx, room, alice, "m-zzz"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("kick unknown: %v", err)
	}
	if err := f.m.Kick(ctx, room, alice, "m-b"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	v, _ := f.m.Snapshot(room)
	if len(v.Players) != 2 {
		t.Fatalf("roster = %d, want 2", len(v.Players))
	}
	if !strings.Contains(f.out.last(), "تم طرد B") {
		t.Fatalf("kick reply should name the player: %q", f.out.last())
	}
}

func TestKickKeepsBallotNumbers(t *testing.T) {
	f := newFixture(t, 0, 0) // spy = A
	ctx := context.Background()
	f.started(t, alice, bob, carol, dave)

	if err := f.m.Kick(ctx, room, alice, "m-b"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if err := f.m.Vote(ctx, room, carol, 2); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("vote for kicked ballot: %v", err)
	}
	if err := f.m.Vote(ctx, room, carol, 3); err != nil {
		t.Fatalf("vote: %v", err)
	}
	v, _ := f.m.Snapshot(room)
	if v.Votes[carol.ID] != carol.ID {
		t.Fatalf("ballot 3 should still be C, votes=%v", v.Votes)
	}
	if err := f.m.Vote(ctx, room, carol, 5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("vote 5: %v", err)
	}
}

func TestKickDropsVotesAndResolves(t *testing.T) {
	f := newFixture(t, 0, 0) // spy = A
	ctx := context.Background()
	f.started(t, alice, bob, carol, dave)

	mustVote := func(u User, n int) {
		t.Helper()
		if err := f.m.Vote(ctx, room, u, n); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	mustVote(bob, 4)   // for D, dropped with D
	mustVote(alice, 2) // A -> B
	mustVote(dave, 1)  // D's own vote, dropped
	if err := f.m.Kick(ctx, room, alice, "m-d"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	v, _ := f.m.Snapshot(room)
	if len(v.Votes) != 1 || v.Votes[alice.ID] != bob.ID {
		t.Fatalf("votes after kick: %v", v.Votes)
	}
	mustVote(bob, 1)
	mustVote(carol, 1)
	if f.m.Active(room) {
		t.Fatalf("round should resolve once the remaining roster voted")
	}
	if f.ledger.points["m-a"] != -1 || f.ledger.points["m-b"] != 1 || f.ledger.points["m-c"] != 1 {
		t.Fatalf("points: %v", f.ledger.points)
	}
	if _, scored := f.ledger.points["m-d"]; scored {
		t.Fatalf("kicked player should not be scored")
	}
}

func TestKickSpyEndsRoundAsEvaded(t *testing.T) {
	f := newFixture(t, 0, 3) // spy = D
	ctx := context.Background()
	f.started(t, alice, bob, carol, dave)

	if err := f.m.Kick(ctx, room, alice, "m-d"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if f.m.Active(room) {
		t.Fatalf("round should end when the spy is kicked")
	}
	want := map[string]int{"m-a": -1, "m-b": -1, "m-c": -1, "m-d": 1}
	for k, v := range want {
		if f.ledger.points[k] != v {
			t.Fatalf("%s = %d, want %d", k, f.ledger.points[k], v)
		}
	}
	if len(f.archive.rounds) != 1 || !f.archive.rounds[0].SpyKicked {
		t.Fatalf("archive: %+v", f.archive.rounds)
	}
}

func TestKickBelowMinimumAborts(t *testing.T) {
	f := newFixture(t, 0, 0) // spy = A
	ctx := context.Background()
	f.started(t, alice, bob, carol)

	if err := f.m.Kick(ctx, room, alice, "m-c"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if f.m.Active(room) {
		t.Fatalf("round should abort below the minimum")
	}
	if len(f.ledger.points) != 0 {
		t.Fatalf("aborted round must not score: %v", f.ledger.points)
	}
}

func TestLeaderboardUsesLedgerValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.Leaderboard(ctx, room); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("leaderboard without game: %v", err)
	}
	f.lobby(t, alice, bob, carol)
	f.ledger.points = map[string]int{"m-a": 1, "m-b": 9, "m-c": 4, "m-x": 100}
	if err := f.m.Leaderboard(ctx, room); err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	got := f.out.last()
	want := "🏆 ترتيب النقاط:\n1. B: 9 نقطة\n2. C: 4 نقطة\n3. A: 1 نقطة\n"
	if got != want {
		t.Fatalf("leaderboard:\n%q\nwant\n%q", got, want)
	}
}

func TestHelpIsStateless(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Help(context.Background(), room); err != nil {
		t.Fatalf("Help: %v", err)
	}
	if f.m.Active(room) {
		t.Fatalf("help must not create state")
	}
	if !strings.Contains(f.out.last(), "!جس مساعده") {
		t.Fatalf("help text: %q", f.out.last())
	}
}

func TestSweepExpiresIdleGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lobby(t, alice)

	f.clock = f.clock.Add(5 * time.Minute)
	if n := f.m.Sweep(ctx); n != 0 {
		t.Fatalf("swept fresh game")
	}
	f.clock = f.clock.Add(6 * time.Minute)
	if n := f.m.Sweep(ctx); n != 1 {
		t.Fatalf("expected 1 expired game, got %d", n)
	}
	if f.m.Active(room) {
		t.Fatalf("expired game still present")
	}
	if err := f.m.Create(ctx, room, bob); err != nil {
		t.Fatalf("create after expiry: %v", err)
	}
}

func TestEmptyRoomSlotsAreReleased(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		r := string(rune('a' + i))
		_ = f.m.PlayersList(ctx, r)
		_ = f.m.Leaderboard(ctx, r)
		_ = f.m.Vote(ctx, r, alice, 1)
	}
	if n := f.m.roomCount(); n != 0 {
		t.Fatalf("slots for rooms without games = %d", n)
	}

	f.started(t, alice, bob, carol)
	if n := f.m.roomCount(); n != 1 {
		t.Fatalf("slots with one game = %d", n)
	}
	for _, u := range []User{alice, bob, carol} {
		if err := f.m.Vote(ctx, room, u, 2); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if f.m.Active(room) || f.m.roomCount() != 0 {
		t.Fatalf("finished game left a slot: %d", f.m.roomCount())
	}

	f.lobby(t, alice)
	f.clock = f.clock.Add(time.Hour)
	if n := f.m.Sweep(ctx); n != 1 {
		t.Fatalf("expected 1 expired game, got %d", n)
	}
	if n := f.m.roomCount(); n != 0 {
		t.Fatalf("expired game left a slot: %d", n)
	}
}

func TestRoomsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := string(rune('a' + i))
			_ = f.m.Create(ctx, r, alice)
			_ = f.m.Join(ctx, r, bob)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		v, ok := f.m.Snapshot(string(rune('a' + i)))
		if !ok || len(v.Players) != 2 {
			t.Fatalf("room %d: %+v", i, v)
		}
	}
}
