package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const fileHeader = "membership,points"

// File is the plain-text ledger: a `membership,points` header followed by one
// `<membership>,<points>` line per record. Every Upsert rewrites the whole file
// through a temp file and rename.
type File struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
}

// line is one data line. key is empty for lines without a comma, which are
// kept verbatim on rewrite but never matched.
type line struct {
	key string
	raw string
}

// NewFile opens path, creating it with just the header when missing.
func NewFile(path string, log *zap.Logger) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("LEDGER_FILE is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &File{path: path, log: log}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger dir: %w", err)
			}
		}
		if err := os.WriteFile(path, []byte(fileHeader+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("create ledger file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat ledger file: %w", err)
	}
	return f, nil
}

func (f *File) read() ([]line, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	rows := strings.Split(text, "\n")
	if len(rows) > 0 {
		rows = rows[1:] // header
	}
	out := make([]line, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r) == "" {
			continue
		}
		key, _, ok := strings.Cut(r, ",")
		if !ok {
			key = ""
		}
		out = append(out, line{key: key, raw: r})
	}
	return out, nil
}

func (f *File) Load(ctx context.Context) map[string]int {
	f.mu.Lock()
	lines, err := f.read()
	f.mu.Unlock()
	out := make(map[string]int, len(lines))
	if err != nil {
		f.log.Error("ledger_file_read_error", zap.String("path", f.path), zap.Error(err))
		return out
	}
	for _, l := range lines {
		if l.key == "" {
			continue
		}
		_, pts, _ := strings.Cut(l.raw, ",")
		out[l.key] = parsePoints(pts)
	}
	return out
}

func (f *File) Points(ctx context.Context, membership string) int {
	return f.Load(ctx)[strings.TrimSpace(membership)]
}

// Upsert updates membership in place or appends it. Other lines are written back untouched.
func (f *File) Upsert(ctx context.Context, membership string, points int) error {
	membership = strings.TrimSpace(membership)
	if err := validMembership(membership); err != nil {
		return fmt.Errorf("%w: %q", err, membership)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read ledger: %w", err)
	}
	rec := membership + "," + strconv.Itoa(points)
	found := false
	for i := range lines {
		if lines[i].key == membership {
			lines[i].raw = rec
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, line{key: membership, raw: rec})
	}

	var b strings.Builder
	b.WriteString(fileHeader)
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return f.replace([]byte(b.String()))
}

func (f *File) replace(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(name, f.path); err != nil {
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }
