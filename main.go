package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"

	"github.com/BatmanBruc/bat-bot-referral/internal/config"
	"github.com/BatmanBruc/bat-bot-referral/internal/handlers"
	"github.com/BatmanBruc/bat-bot-referral/internal/logger"
	"github.com/BatmanBruc/bat-bot-referral/internal/middleware"
	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/internal/scheduler"
	"github.com/BatmanBruc/bat-bot-referral/internal/server"
	"github.com/BatmanBruc/bat-bot-referral/internal/utils"
	"github.com/BatmanBruc/bat-bot-referral/store"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

const appName = "bot-referral"

func main() {
	envFile := os.Getenv("REFBOT_ENV_FILE")
	if envFile == "" {
		envFile = "config.env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(appName, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("application error", "error", err)
		os.Exit(1)
	}
}

type backend struct {
	kv    types.KeyValueStore
	ping  server.Pinger
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		rdb, err := store.NewRedisClient(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, cfg.Redis.Prefix)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.Info("redis connected", "addr", cfg.Redis.Addr(), "prefix", cfg.Redis.Prefix)
		return &backend{
			kv:   store.NewRedisKV(rdb, cfg.Store.MaxRetries),
			ping: rdb,
			close: func() {
				if err := rdb.Close(); err != nil {
					log.Error("failed to close redis", "error", err)
				}
			},
		}, nil
	case config.BackendPostgres:
		pg, err := store.NewPostgresStore(ctx, store.PostgresOptions{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
		}, cfg.Store.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Info("postgres connected, migrations applied")
		return &backend{kv: pg, ping: pg, close: pg.Close}, nil
	default:
		log.Warn("using in-memory store, data is lost on restart")
		return &backend{kv: store.NewMemoryStore(), close: func() {}}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting", "backend", cfg.Store.Backend)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	svc := referral.NewService(st.kv, referral.Config{
		CompletionAward: cfg.Referral.CompletionAward,
		CallbackSecret:  cfg.Referral.CallbackSecret,
	}, log)

	b, err := newBot(cfg.Telegram, log)
	if err != nil {
		return err
	}
	var sender scheduler.MessageSender
	if b != nil {
		sender = b
	}

	sched, err := scheduler.NewScheduler(sender, svc.Users, svc.Reconciler, scheduler.Config{
		Workers:       cfg.Scheduler.Workers,
		AuditInterval: cfg.Scheduler.AuditInterval,
	}, log.With("component", "scheduler"))
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if b != nil {
		options := store.NewUserOptions(st.kv)
		h := handlers.NewHandlers(svc.Users, svc.Board, options, sched, handlers.Config{
			OfferURL:    cfg.Referral.OfferURL,
			DefaultTopN: cfg.Referral.DefaultTopN,
			Admins:      cfg.Telegram.Admins(),
		}, log.With("component", "chat"))
		if me, err := b.GetMe(ctx); err == nil {
			h.SetBotUsername(me.Username)
		} else {
			log.Warn("getMe failed, deep links disabled", "error", err)
		}
		registerHandlers(b, h, middleware.NewMessageAnalyzer(svc.Resolver, options, log.With("component", "chat")))
	}

	httpServer := server.NewHTTPServer(cfg.HTTP, log,
		server.NewHealthController(st.ping, log),
		server.NewCallbackController(svc.Processor, cfg.HTTP.MaxBodyBytes, log.With("component", "callback")),
		server.NewLeaderboardController(svc.Board, svc.Users, log),
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", httpServer.Addr)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if b != nil {
		g.Go(func() error {
			log.Info("bot started")
			b.Start(gCtx)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown http server", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("application shutdown completed")
	return nil
}

func newBot(cfg config.TelegramConfig, log *slog.Logger) (*bot.Bot, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		log.Warn("telegram token not set, chat commands disabled")
		return nil, nil
	}
	httpClient := &http.Client{
		Timeout: cfg.PollTimeout + 10*time.Second,
	}
	b, err := bot.New(token,
		bot.WithHTTPClient(cfg.PollTimeout, httpClient),
		bot.WithErrorsHandler(func(err error) {
			log.Warn("telegram error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return b, nil
}

func registerHandlers(b *bot.Bot, h *handlers.Handlers, mw *middleware.Middlewares) {
	handlerChain := utils.Adapt(middleware.Chain(h.MainHandler,
		mw.Recover,
		mw.AnalyzeMessageMiddleware,
		mw.RegisterUserMiddleware,
	))

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)
}
