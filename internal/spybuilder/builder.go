package spybuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/Spy-KakaoTalk-bot/internal/config"
	"github.com/park285/Spy-KakaoTalk-bot/internal/ledger"
	"github.com/park285/Spy-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Spy-KakaoTalk-bot/internal/spy"
	"go.uber.org/zap"
)

type Deps struct {
	Manager *spy.Manager
	Ledger  ledger.Ledger
	Archive spy.RoundArchive   // nil for the file backend
	Rounds  ledger.RoundReader // nil for the file backend
	Texts   *msgcat.Catalog
	Words   *spy.WordList
}

// roundStore is a backend that both archives and lists rounds.
type roundStore interface {
	spy.RoundArchive
	ledger.RoundReader
}

// New wires the ledger backend, reply catalog, word list and game manager from cfg.
func New(ctx context.Context, cfg *config.AppConfig, out spy.Messenger, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if out == nil {
		return nil, fmt.Errorf("nil messenger")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	texts, err := msgcat.New(cfg.MessagesDir, msgcat.Vars{"Prefix": cfg.BotPrefix})
	if err != nil {
		return nil, fmt.Errorf("init messages: %w", err)
	}

	words := spy.DefaultWords()
	if strings.TrimSpace(cfg.WordsFile) != "" {
		words, err = spy.LoadWords(cfg.WordsFile)
		if err != nil {
			return nil, fmt.Errorf("init words: %w", err)
		}
	}

	store, rounds, err := openLedger(ctx, cfg, logger.Named("ledger"))
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	mgr := spy.NewManager(store, words, texts, out, spy.Options{
		MinPlayers: cfg.MinPlayers,
		IdleTTL:    cfg.GameIdleTTL,
		Archive:    rounds,
		Logger:     logger.Named("spy"),
	})

	logger.Info("spy_deps_ready",
		zap.String("ledger", cfg.LedgerBackend),
		zap.Int("words", words.Len()),
		zap.Int("min_players", cfg.MinPlayers),
		zap.Duration("idle_ttl", cfg.GameIdleTTL),
	)
	d := &Deps{Manager: mgr, Ledger: store, Texts: texts, Words: words}
	if rounds != nil {
		d.Archive, d.Rounds = rounds, rounds
	}
	return d, nil
}

// OpenRounds opens only the configured backend's round archive, for operator
// tools. The caller closes the returned ledger.
func OpenRounds(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (ledger.RoundReader, ledger.Ledger, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store, rounds, err := openLedger(ctx, cfg, logger.Named("ledger"))
	if err != nil {
		return nil, nil, fmt.Errorf("init ledger: %w", err)
	}
	if rounds == nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("ledger backend %q keeps no round archive", cfg.LedgerBackend)
	}
	return rounds, store, nil
}

func openLedger(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (ledger.Ledger, roundStore, error) {
	switch cfg.LedgerBackend {
	case config.LedgerFile, "":
		l, err := ledger.NewFile(cfg.LedgerFile, logger)
		if err != nil {
			return nil, nil, err
		}
		return l, nil, nil
	case config.LedgerMemory:
		l := ledger.NewMemory()
		return l, l, nil
	case config.LedgerRedis:
		l, err := ledger.NewRedis(ctx, cfg.RedisURL, cfg.LedgerRedisKey, logger)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	case config.LedgerPostgres:
		l, err := ledger.OpenPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	case config.LedgerSQLite:
		l, err := ledger.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger backend: %s", cfg.LedgerBackend)
	}
}

// Close releases the ledger.
func (d *Deps) Close() error {
	if d == nil || d.Ledger == nil {
		return nil
	}
	return d.Ledger.Close()
}
