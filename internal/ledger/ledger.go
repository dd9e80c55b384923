package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
)

// Ledger is the durable membership → points store.
// Load and Points never fail; read errors are logged and degrade to empty/0.
type Ledger interface {
	Load(ctx context.Context) map[string]int
	Points(ctx context.Context, membership string) int
	Upsert(ctx context.Context, membership string, points int) error
	Close() error
}

// RoundReader lists archived rounds newest first. An empty room means every
// room; limit <= 0 means no limit beyond what the backend retains.
type RoundReader interface {
	RecentRounds(ctx context.Context, room string, limit int) ([]domain.RoundResult, error)
}

var (
	_ RoundReader = (*Memory)(nil)
	_ RoundReader = (*Redis)(nil)
	_ RoundReader = (*SQL)(nil)
)

var ErrInvalidMembership = errors.New("invalid membership key")

// validMembership rejects keys the CSV file format cannot carry.
func validMembership(m string) error {
	if strings.TrimSpace(m) == "" || strings.ContainsAny(m, ",\r\n") {
		return ErrInvalidMembership
	}
	return nil
}

// parsePoints treats anything non-integer as 0.
func parsePoints(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
