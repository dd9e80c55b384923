package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Fixed-width so that ORDER BY on the TEXT column sorts chronologically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQL is the database-backed ledger and round archive.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
}

func OpenPostgres(ctx context.Context, databaseURL string, log *zap.Logger) (*SQL, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	return newSQL(ctx, db, DialectPostgres, log)
}

func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQL, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("SQLITE_PATH is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQL(ctx, db, DialectSQLite, log)
}

func newSQL(ctx context.Context, db *sql.DB, dialect Dialect, log *zap.Logger) (*SQL, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	s := &SQL{db: db, dialect: dialect, log: log}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return s, nil
}

func (s *SQL) migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if s.dialect == DialectSQLite {
		ts = "TEXT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spy_points (
			membership TEXT PRIMARY KEY,
			points     INTEGER NOT NULL DEFAULT 0,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS spy_rounds (
			round_id     TEXT PRIMARY KEY,
			room         TEXT NOT NULL,
			word         TEXT NOT NULL,
			spy_id       BIGINT NOT NULL,
			spy_name     TEXT NOT NULL,
			suspect_id   BIGINT NOT NULL DEFAULT 0,
			suspect_name TEXT NOT NULL DEFAULT '',
			caught       BOOLEAN NOT NULL DEFAULT FALSE,
			spy_kicked   BOOLEAN NOT NULL DEFAULT FALSE,
			players      TEXT NOT NULL,
			started_at   ` + ts + ` NOT NULL,
			ended_at     ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS spy_rounds_room_ended ON spy_rounds (room, ended_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites `?` placeholders to `$n` for postgres.
func (s *SQL) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) timeArg(t time.Time) any {
	if s.dialect == DialectSQLite {
		return t.UTC().Format(sqliteTimeFormat)
	}
	return t
}

func (s *SQL) Load(ctx context.Context) map[string]int {
	out := make(map[string]int)
	rows, err := s.db.QueryContext(ctx, `SELECT membership, points FROM spy_points`)
	if err != nil {
		s.log.Error("ledger_sql_load_error", zap.String("dialect", string(s.dialect)), zap.Error(err))
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m string
			p int
		)
		if err := rows.Scan(&m, &p); err != nil {
			s.log.Error("ledger_sql_scan_error", zap.Error(err))
			continue
		}
		out[m] = p
	}
	if err := rows.Err(); err != nil {
		s.log.Error("ledger_sql_rows_error", zap.Error(err))
	}
	return out
}

func (s *SQL) Points(ctx context.Context, membership string) int {
	var p int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT points FROM spy_points WHERE membership = ?`), strings.TrimSpace(membership)).Scan(&p)
	if err == sql.ErrNoRows {
		return 0
	}
	if err != nil {
		s.log.Error("ledger_sql_get_error", zap.String("membership", membership), zap.Error(err))
		return 0
	}
	return p
}

func (s *SQL) Upsert(ctx context.Context, membership string, points int) error {
	membership = strings.TrimSpace(membership)
	if err := validMembership(membership); err != nil {
		return err
	}
	q := `INSERT INTO spy_points (membership, points, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (membership) DO UPDATE SET
		points=EXCLUDED.points,
		updated_at=EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, s.rebind(q), membership, points, s.timeArg(time.Now()))
	return err
}

// SaveRound upserts a scored round into spy_rounds.
func (s *SQL) SaveRound(ctx context.Context, r domain.RoundResult) error {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	q := `INSERT INTO spy_rounds (
		round_id, room, word, spy_id, spy_name,
		suspect_id, suspect_name, caught, spy_kicked,
		players, started_at, ended_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT (round_id) DO UPDATE SET
		suspect_id=EXCLUDED.suspect_id,
		suspect_name=EXCLUDED.suspect_name,
		caught=EXCLUDED.caught,
		spy_kicked=EXCLUDED.spy_kicked,
		players=EXCLUDED.players,
		ended_at=EXCLUDED.ended_at`
	_, err = s.db.ExecContext(ctx, s.rebind(q),
		r.RoundID, r.Room, r.Word, r.SpyID, r.SpyName,
		r.SuspectID, r.SuspectName, r.Caught, r.SpyKicked,
		string(players), s.timeArg(r.StartedAt), s.timeArg(r.EndedAt),
	)
	return err
}

// RecentRounds reads archived rounds ordered by end time, newest first.
func (s *SQL) RecentRounds(ctx context.Context, room string, limit int) ([]domain.RoundResult, error) {
	q := `SELECT round_id, room, word, spy_id, spy_name,
		suspect_id, suspect_name, caught, spy_kicked,
		players, started_at, ended_at
	FROM spy_rounds`
	var args []any
	if room != "" {
		q += ` WHERE room = ?`
		args = append(args, room)
	}
	q += ` ORDER BY ended_at DESC, round_id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoundResult
	for rows.Next() {
		var (
			r              domain.RoundResult
			players        string
			started, ended any
		)
		if err := rows.Scan(
			&r.RoundID, &r.Room, &r.Word, &r.SpyID, &r.SpyName,
			&r.SuspectID, &r.SuspectName, &r.Caught, &r.SpyKicked,
			&players, &started, &ended,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(players), &r.Players); err != nil {
			return nil, fmt.Errorf("decode players of %s: %w", r.RoundID, err)
		}
		if r.StartedAt, err = scanTime(started); err != nil {
			return nil, fmt.Errorf("started_at of %s: %w", r.RoundID, err)
		}
		if r.EndedAt, err = scanTime(ended); err != nil {
			return nil, fmt.Errorf("ended_at of %s: %w", r.RoundID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanTime accepts TIMESTAMPTZ values from postgres and TEXT from sqlite.
func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %T", v)
	}
}

func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
