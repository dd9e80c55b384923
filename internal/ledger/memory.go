package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
)

// Memory is a development-only in-process ledger used when no durable store is configured.
// It also keeps archived rounds.
type Memory struct {
	mu     sync.RWMutex
	points map[string]int
	rounds map[string]domain.RoundResult
}

func NewMemory() *Memory {
	return &Memory{
		points: make(map[string]int),
		rounds: make(map[string]domain.RoundResult),
	}
}

func (m *Memory) Load(ctx context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.points))
	for k, v := range m.points {
		out[k] = v
	}
	return out
}

func (m *Memory) Points(ctx context.Context, membership string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.points[strings.TrimSpace(membership)]
}

func (m *Memory) Upsert(ctx context.Context, membership string, points int) error {
	membership = strings.TrimSpace(membership)
	if err := validMembership(membership); err != nil {
		return err
	}
	m.mu.Lock()
	m.points[membership] = points
	m.mu.Unlock()
	return nil
}

// SaveRound stores r by round id, replacing an earlier copy.
func (m *Memory) SaveRound(ctx context.Context, r domain.RoundResult) error {
	cp := r
	cp.Players = append([]domain.RoundPlayer(nil), r.Players...)
	m.mu.Lock()
	m.rounds[r.RoundID] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecentRounds(ctx context.Context, room string, limit int) ([]domain.RoundResult, error) {
	m.mu.RLock()
	items := make([]domain.RoundResult, 0, len(m.rounds))
	for _, r := range m.rounds {
		if room == "" || r.Room == room {
			items = append(items, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].RoundID > items[j].RoundID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) Close() error { return nil }
