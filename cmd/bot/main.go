// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lvbot/pkg/availability"
	"lvbot/pkg/booking"
	"lvbot/pkg/browser"
	"lvbot/pkg/config"
	"lvbot/pkg/log"
	"lvbot/pkg/monitor"
	"lvbot/pkg/queue"
	"lvbot/pkg/scheduler"
	"lvbot/pkg/telegram"
	"lvbot/pkg/users"
)

const poolReadyTimeout = 2 * time.Minute

func main() {
	productionFlag := flag.Bool("production", false, "use production logging")
	flag.Parse()

	cfg, configError := config.Load()
	if configError != nil {
		panic(configError)
	}
	if initError := log.Init(*productionFlag || cfg.ProductionMode); initError != nil {
		panic(initError)
	}
	defer log.Sync()
	logger := log.L()

	if cfg.BotToken == "" {
		logger.Fatal("missing_bot_token", zap.String("env", "TELEGRAM_BOT_TOKEN"))
	}

	bot, botError := tgbotapi.NewBotAPI(cfg.BotToken)
	if botError != nil {
		logger.Fatal("telegram_auth_failed", zap.Error(botError))
	}
	logger.Info("telegram_authorized", zap.String("bot", bot.Self.UserName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := browser.NewPool(cfg, cfg.CourtNumbers(), log.Named("browser"))
	if startError := pool.Start(ctx); startError != nil {
		logger.Fatal("browser_pool_start_failed", zap.Error(startError))
	}
	defer pool.Stop()
	if !pool.WaitUntilReady(poolReadyTimeout) {
		logger.Fatal("browser_pool_never_ready")
	}

	testMode := config.NewTestModeStore(cfg.TestModeFile, log.Named("testmode"))
	userStore := users.NewStore(cfg.UsersFile, log.Named("users"))
	repository := queue.NewRepository(cfg.QueueFile, log.Named("queue"))
	reservationQueue := queue.New(repository, testMode, cfg, log.Named("queue"))
	checker := availability.NewChecker(pool, cfg, log.Named("availability"))
	executor := booking.NewFlowExecutor(log.Named("booking"))

	handler := telegram.NewHandler(bot, checker, reservationQueue, userStore, testMode, cfg, log.Named("telegram"))

	bookingScheduler := scheduler.New(reservationQueue, pool, executor, testMode, cfg,
		handler.Notify, log.Named("scheduler"))

	poller := monitor.NewPoller(
		func(pollCtx context.Context) availability.Matrix {
			return checker.CheckAvailability(pollCtx, availability.CheckOptions{})
		},
		func(snapshot monitor.Snapshot) {
			logger.Info("availability_changed",
				zap.Time("timestamp", snapshot.Timestamp),
				zap.Int("courts_changed", len(snapshot.Changes)))
			summary := availability.FormatMessage(snapshot.Results, time.Now().In(cfg.Timezone))
			for _, adminID := range cfg.AdminUserIDs {
				handler.Notify(adminID, summary)
			}
		},
		cfg.AvailabilityPollEvery,
		log.Named("monitor"),
	)

	metricsServer := &http.Server{Addr: cfg.MetricsListenAddress, Handler: promhttp.Handler()}
	go func() {
		logger.Info("metrics_listening", zap.String("address", cfg.MetricsListenAddress))
		if serveError := metricsServer.ListenAndServe(); serveError != nil && serveError != http.ErrServerClosed {
			logger.Error("metrics_server_failed", zap.Error(serveError))
		}
	}()

	go pool.RunMaintenance(ctx)
	go poller.Run(ctx)
	go bookingScheduler.Run(ctx)
	go handler.Run(ctx)

	logger.Info("bot_running",
		zap.Ints("courts", pool.AvailableCourts()),
		zap.Bool("fully_ready", pool.IsFullyReady()),
		zap.Int("queued_reservations", reservationQueue.Size()))

	<-ctx.Done()
	logger.Info("shutdown_signal_received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	// pool.Stop (deferred) waits for any in-flight booking before closing
	// the browser.
}
