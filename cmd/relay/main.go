package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bookrelay/internal/api"
	"bookrelay/internal/client"
	"bookrelay/internal/config"
	"bookrelay/internal/events"
	"bookrelay/internal/logging"
	"bookrelay/internal/metrics"
	"bookrelay/internal/queue"
	"bookrelay/internal/store"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, cleanup, err := initStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer cleanup()

	queueStore := store.NewQueueStore(kv, cfg.Store.Key, &logger)
	upstream := client.New(cfg.Upstream)

	eventBus := events.NewEventBus()
	subscribeQueueEvents(eventBus, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	svc := queue.NewService(queueStore, upstream, eventBus, queue.OptionsFromConfig(cfg.Queue), &logger)
	if err := svc.Initialize(ctx); err != nil {
		logger.Error().Err(err).Msg("Ошибка загрузки очереди")
		return err
	}
	defer svc.Shutdown()

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, svc, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	// Пробер связности переводит сервис online/offline и запускает дренаж
	prober := client.NewProber(upstream, time.Duration(cfg.Upstream.ProbeSeconds)*time.Second, svc.SetOnline, &logger)
	logger.Info().Str("upstream", cfg.Upstream.BaseURL).Msg("Relay started")
	prober.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "relay-main").Logger()

	return cfg, logger, closer, nil
}

// initStore выбирает бекенд хранилища очереди. Redis всегда оборачивается
// в failover с памятью, чтобы недоступность Redis не блокировала прием.
func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store.KV, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
			return nil, nil, err
		}
		kv, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
			return nil, nil, err
		}
		return kv, func() { _ = kv.Close() }, nil

	case "redis":
		redisClient := store.NewRedisClient(cfg.Store.Redis)
		if err := store.Ping(ctx, redisClient); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable")
		}
		kv := store.NewFailoverKV(store.NewRedisKV(redisClient), store.NewMemoryKV(), logger)
		return kv, func() { _ = store.Close(redisClient) }, nil

	default:
		logger.Warn().Msg("In-memory store selected: queue will not survive restarts")
		return store.NewMemoryKV(), func() {}, nil
	}
}

func subscribeQueueEvents(bus *events.EventBus, logger *zerolog.Logger) {
	if bus == nil {
		return
	}

	decode := func(ev *events.Event) (events.QueueNotification, error) {
		var payload events.QueueNotification
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return payload, err
		}
		return payload, nil
	}

	logHandler := func(level zerolog.Level, msg string) events.EventHandler {
		return func(ev *events.Event) error {
			payload, err := decode(ev)
			if err != nil {
				logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
				return nil
			}
			logger.WithLevel(level).
				Str("item_id", payload.ItemID).
				Str("status", payload.Status).
				Int("attempts", payload.Attempts).
				Msg(msg)
			return nil
		}
	}

	bus.Subscribe(events.EventQueuedOffline, logHandler(zerolog.InfoLevel, "Заявка поставлена в очередь"))
	bus.Subscribe(events.EventProcessed, logHandler(zerolog.InfoLevel, "Заявка доставлена"))
	bus.Subscribe(events.EventPermanentlyFailed, logHandler(zerolog.ErrorLevel, "Заявка требует ручного вмешательства"))
}
