package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	appcfg "github.com/park285/Spy-KakaoTalk-bot/internal/config"
	"github.com/park285/Spy-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Spy-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Spy-KakaoTalk-bot/internal/spybuilder"
	"go.uber.org/zap"
)

func main() {
	window := flag.Duration("window", 10*time.Second, "how long to print inbound websocket messages")
	rounds := flag.Int("rounds", 0, "print this many archived rounds instead of probing Iris")
	room := flag.String("room", "", "restrict -rounds to one room")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer obslog.Sync()
	log := obslog.Named("irischeck")

	if *rounds > 0 {
		if err := printRounds(cfg, *room, *rounds); err != nil {
			log.Error("rounds_error", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	client := irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(cfg.Headers),
		irisfast.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ic, err := client.GetConfig(ctx)
	if err != nil {
		log.Error("iris_config_error", zap.Error(err))
	} else {
		log.Info("iris_config_ok",
			zap.String("bot_name", ic.BotName),
			zap.Int("port", ic.Port),
			zap.Int("polling", ic.PollingSpeed),
			zap.Int("rate", ic.MessageRate),
			zap.String("endpoint", ic.WebserverEndpoint),
		)
	}

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 0, time.Second)
	ws.SetHeaderProvider(cfg.Headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		log.Info("ws_state", zap.String("state", state.String()))
	})
	ws.OnMessage(func(msg *irisfast.Message) {
		command := strings.HasPrefix(strings.TrimSpace(msg.Msg), cfg.BotPrefix)
		fmt.Printf("WS msg room=%s user=%s from=%s command=%v allowed=%v text=%q\n",
			msg.Room, msg.UserID(), msg.SenderName(), command, cfg.RoomAllowed(msg.Room), msg.Msg)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Error("ws_connect_error", zap.Error(err))
		if errors.Is(err, irisfast.ErrUnauthorized) {
			log.Error("ws_auth_hint", zap.String("hint", "check X_USER_ID / X_SESSION_ID"))
		}
		os.Exit(1)
	}

	t := time.NewTimer(*window)
	<-t.C

	_ = ws.Close(context.Background())
}

func printRounds(cfg *appcfg.AppConfig, room string, limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reader, store, err := spybuilder.OpenRounds(ctx, cfg, obslog.L())
	if err != nil {
		return err
	}
	defer store.Close()

	items, err := reader.RecentRounds(ctx, room, limit)
	if err != nil {
		return err
	}
	for _, r := range items {
		fmt.Printf("round=%s room=%s ended=%s word=%q spy=%s suspect=%s caught=%v spy_kicked=%v players=%d\n",
			r.RoundID, r.Room, r.EndedAt.Format(time.RFC3339), r.Word, r.SpyName, r.SuspectName, r.Caught, r.SpyKicked, len(r.Players))
	}
	if len(items) == 0 {
		fmt.Println("no archived rounds")
	}
	return nil
}
