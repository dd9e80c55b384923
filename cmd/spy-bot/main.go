package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/Spy-KakaoTalk-bot/internal/bot"
	appcfg "github.com/park285/Spy-KakaoTalk-bot/internal/config"
	"github.com/park285/Spy-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Spy-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Spy-KakaoTalk-bot/internal/spybuilder"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := appcfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		return 1
	}
	defer obslog.Sync()
	log := obslog.L()

	client := irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(cfg.Headers))

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, cfg.WSMaxReconnect, cfg.WSReconnectDelay)
	ws.SetHeaderProvider(cfg.Headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		log.Info("ws_state", zap.String("state", state.String()))
	})

	egress := irisfast.NewEgress(cfg.EgressMode, cfg.EgressDryRun, client, ws, obslog.Named("egress"))
	out := bot.NewMessenger(egress)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := spybuilder.New(ctx, cfg, out, obslog.L())
	if err != nil {
		log.Error("spy_init_error", zap.Error(err))
		return 1
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn("ledger_close_error", zap.Error(err))
		}
	}()

	router := bot.NewRouter(deps.Manager, deps.Texts, out, bot.RouterOptions{
		Prefix:      cfg.BotPrefix,
		RoomAllowed: cfg.RoomAllowed,
		Logger:      obslog.Named("router"),
	})
	ws.OnMessage(router.OnMessage)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = ws.Connect(cctx)
	cancel()
	if err != nil {
		log.Error("ws_connect_error", zap.String("url", cfg.IrisWSURL), zap.Error(err))
		if errors.Is(err, irisfast.ErrUnauthorized) {
			log.Error("ws_auth_hint", zap.String("hint", "check X_USER_ID / X_SESSION_ID against the Iris bridge"))
		}
		return 1
	}
	log.Info("spy_bot_started",
		zap.String("prefix", cfg.BotPrefix),
		zap.String("egress", cfg.EgressMode),
		zap.Strings("allowed_rooms", cfg.AllowedRooms),
	)

	go deps.Manager.RunJanitor(ctx)

	<-ctx.Done()
	log.Info("spy_bot_stopping")

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = ws.Close(closeCtx)
	router.Wait()
	return 0
}
