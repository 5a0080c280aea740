package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"IMCore/config"
	"IMCore/logger"
	"IMCore/service/gateway"
	"IMCore/service/natsx"
	"IMCore/service/presence"
	"IMCore/service/storage"
	redisx "IMCore/service/storage/redis"
)

func main() {
	cfg := config.Load()

	var (
		receiptStore presence.ReceiptStore = storage.NewMemoryReceipts()
		announcer    presence.Announcer    = presence.NopAnnouncer{}
		provider     presence.ChatProvider = openProvider{}
	)
	if cfg.UseRedis {
		rdb, err := redisx.New(redisx.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Errorf("[main] redis connect failed: %v", err)
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()
		receiptStore = storage.NewRedisReceipts(rdb)
		announcer = storage.NewRedisPresence(rdb, cfg.NodeID, cfg.PresenceTTL)
		provider = storage.NewRedisChat(rdb)
	}

	reg := presence.NewRegistry()
	clients := gateway.NewClients()
	sender := gateway.NewLocalSender(clients, cfg.FanoutWorkers, cfg.FanoutQueue)
	defer sender.Close()

	notifier := presence.NewNotifier(reg, sender)
	typing := presence.NewTyping(presence.TypingConfig{Timeout: cfg.TypingTimeout}, reg, notifier)
	defer typing.Close()
	receipts := presence.NewReceipts(receiptStore, provider, notifier)

	hub := gateway.NewHub(reg, typing, receipts, notifier, provider, announcer)
	srv := gateway.NewServer(cfg, hub, clients, sender)

	if cfg.NatsURL != "" {
		nc, err := natsx.New(natsx.Config{URL: cfg.NatsURL, Name: "im-gateway-" + cfg.NodeID})
		if err != nil {
			logger.Errorf("[main] nats connect failed: %v", err)
			os.Exit(1)
		}
		defer nc.Close()
		if err := natsx.ServeEvents(nc, hub); err != nil {
			logger.Errorf("[main] nats subscribe failed: %v", err)
			os.Exit(1)
		}
		srv.SetPublisher(nc)
	}

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv.Router()}
	go func() {
		logger.Infof("[main] gateway %s listening on %s", cfg.NodeID, cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[main] http serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	logger.Info("[main] gateway stopped")
}

// openProvider is the no-backend fallback used when Redis is disabled:
// every user counts as a participant and message history is empty.
type openProvider struct{}

func (openProvider) IsParticipant(context.Context, string, string) (bool, error) {
	return true, nil
}

func (openProvider) CountMessagesAfter(context.Context, string, string, int64) (int, error) {
	return 0, nil
}

func (openProvider) GetParticipants(context.Context, string) ([]string, error) {
	return nil, nil
}
