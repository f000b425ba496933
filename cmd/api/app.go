package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/adapter/events"
	"github.com/srgjo27/defi_booking/internal/adapter/gateway"
	"github.com/srgjo27/defi_booking/internal/adapter/gateway/nowpayments"
	"github.com/srgjo27/defi_booking/internal/adapter/gateway/omise"
	"github.com/srgjo27/defi_booking/internal/adapter/gateway/paypal"
	"github.com/srgjo27/defi_booking/internal/adapter/handler"
	"github.com/srgjo27/defi_booking/internal/adapter/lock/memlock"
	"github.com/srgjo27/defi_booking/internal/adapter/lock/redislock"
	"github.com/srgjo27/defi_booking/internal/adapter/nft"
	"github.com/srgjo27/defi_booking/internal/adapter/notify"
	"github.com/srgjo27/defi_booking/internal/adapter/repository/memory"
	"github.com/srgjo27/defi_booking/internal/adapter/repository/postgres"
	"github.com/srgjo27/defi_booking/internal/core/ports"
	"github.com/srgjo27/defi_booking/internal/core/services"
	"github.com/srgjo27/defi_booking/internal/platform/config"
	"github.com/srgjo27/defi_booking/internal/platform/crypto"
	"github.com/srgjo27/defi_booking/internal/platform/database"
	"github.com/srgjo27/defi_booking/internal/platform/logger"
	"github.com/srgjo27/defi_booking/internal/platform/telemetry"
)

const serviceName = "defi-booking"

func bootstrap(envFile string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func connectPostgres(ctx context.Context, cfg config.Postgres, log *zap.Logger) (*sqlx.DB, error) {
	return database.NewPostgresDB(ctx, database.Config{
		DSN:          cfg.DSN(),
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	}, log)
}

func migrate(ctx context.Context, envFile string, up bool) error {
	cfg, log, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	db, err := connectPostgres(ctx, cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if up {
		err = database.Migrate(ctx, db)
	} else {
		err = database.Rollback(ctx, db)
	}
	if err != nil {
		return err
	}
	log.Info("migrations done", zap.Bool("up", up))
	return nil
}

func serve(ctx context.Context, envFile string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.Env, cfg.OTLPEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	store, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	publisher, closePublisher, err := newPublisher(cfg.RabbitMQ, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	gateways, err := newGateways(cfg, log)
	if err != nil {
		return err
	}
	if len(gateways) == 0 {
		log.Warn("no payment provider configured")
	}
	for _, g := range gateways {
		log.Info("payment provider enabled", zap.String("provider", string(g.Provider())))
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	cipher, err := crypto.NewAESCipher(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	minter := nft.NewMinter(nft.Config{
		StorageURL:      cfg.NFT.StorageURL,
		StorageKey:      cfg.NFT.StorageKey,
		Chain:           cfg.NFT.Chain,
		ContractAddress: cfg.NFT.ContractAddress,
		ImageURI:        cfg.NFT.ImageURI,
	}, gateway.NewHTTPClient(), log)

	payments := services.NewPaymentService(cfg.ProviderTimeout, gateways...)
	nfts := services.NewNFTService(store, minter, locker, cipher, publisher, cfg.NFT.Enabled, log)
	orch := services.NewOrchestrationService(store, payments, locker, publisher, notifier, nfts, log)
	bookings := services.NewBookingService(store, store, payments, orch, cipher, publisher, cfg.NFT.Enabled, log)

	gin.SetMode(cfg.HTTP.GinMode)
	router := handler.NewRouter(
		handler.NewBookingHandler(bookings, log),
		handler.NewPaymentHandler(orch, log),
		handler.NewNFTHandler(nfts, log),
		log,
	)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server startup failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exiting")
	return nil
}

func newStore(ctx context.Context, cfg config.Config, log *zap.Logger) (ports.Store, func(), error) {
	if cfg.StoreDriver != "postgres" {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := connectPostgres(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgres.NewStore(db), func() { db.Close() }, nil
}

func newLocker(ctx context.Context, cfg config.Config, log *zap.Logger) (ports.Locker, func(), error) {
	if cfg.LockDriver != "redis" {
		return memlock.New(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return redislock.New(client, cfg.Redis.LockTTL, log), func() { client.Close() }, nil
}

func newPublisher(cfg config.RabbitMQ, log *zap.Logger) (ports.EventPublisher, func(), error) {
	if cfg.URL == "" {
		return events.NewNoop(log), func() {}, nil
	}
	p, err := events.NewPublisher(cfg.URL, cfg.Exchange, log)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: %w", err)
	}
	return p, func() { p.Close() }, nil
}

// newGateways registers providers in checkout order: PayPal, crypto, card.
func newGateways(cfg config.Config, log *zap.Logger) ([]ports.ProviderGateway, error) {
	api := strings.TrimRight(cfg.APIURL, "/")
	front := strings.TrimRight(cfg.FrontendURL, "/")

	var out []ports.ProviderGateway
	if cfg.PayPal.Enabled() {
		out = append(out, paypal.New(paypal.Config{
			ClientID:      cfg.PayPal.ClientID,
			ClientSecret:  cfg.PayPal.ClientSecret,
			BaseURL:       cfg.PayPal.BaseURL(),
			WebhookID:     cfg.PayPal.WebhookID,
			WebhookSecret: cfg.PayPal.WebhookSecret,
			ReturnURL:     front + "/payment/success",
			CancelURL:     front + "/payment/cancel",
			BrandName:     "DeFi Booking",
		}, nil))
	}
	if cfg.NOW.Enabled() {
		out = append(out, nowpayments.New(nowpayments.Config{
			APIKey:      cfg.NOW.APIKey,
			IPNSecret:   cfg.NOW.IPNSecret,
			BaseURL:     cfg.NOW.BaseURL,
			PayCurrency: cfg.NOW.PayCurrency,
			CallbackURL: api + "/webhooks/nowpayments",
			SuccessURL:  front + "/payment/success",
			CancelURL:   front + "/payment/cancel",
		}, nil))
	}
	if cfg.Omise.Enabled() {
		g, err := omise.New(omise.Config{
			PublicKey:     cfg.Omise.PublicKey,
			SecretKey:     cfg.Omise.SecretKey,
			WebhookSecret: cfg.Omise.WebhookSecret,
			SourceType:    cfg.Omise.SourceType,
			ReturnURL:     front + "/payment/success",
		}, log)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
