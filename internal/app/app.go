package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/watch2earn/cinema-server/internal/controller"
	"github.com/watch2earn/cinema-server/internal/repository/catalog"
	catalogInmemory "github.com/watch2earn/cinema-server/internal/repository/catalog/inmemory"
	connInmemory "github.com/watch2earn/cinema-server/internal/repository/connection/inmemory"
	"github.com/watch2earn/cinema-server/internal/repository/events"
	"github.com/watch2earn/cinema-server/internal/repository/events/rabbitmq"
	ticketRedis "github.com/watch2earn/cinema-server/internal/repository/ticket/redis"
	"github.com/watch2earn/cinema-server/internal/service/room"
	"github.com/watch2earn/cinema-server/pkg/ctxlogger"
	"github.com/watch2earn/cinema-server/pkg/redisclient"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

type AppConfig struct {
	Secret          string        `json:"-"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	LogLevel        string        `json:"log_level"`
	RedisHost       string        `json:"redis_host"`
	RedisPort       int           `json:"redis_port"`
	RedisPassword   string        `json:"-"`
	RedisDB         int           `json:"redis_db"`
	MembersLimit    int           `json:"members_limit"`
	VoteWindow      time.Duration `json:"vote_window"`
	VoteTriggers    []float64     `json:"vote_triggers"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	SeekTolerance   float64       `json:"seek_tolerance"`
	ResyncThreshold float64       `json:"resync_threshold"`
	CatalogPath     string        `json:"catalog_path"`
	AMQPURL         string        `json:"-"`
	AdminSecret     string        `json:"-"`
	TicketTTL       time.Duration `json:"ticket_ttl"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.VoteWindow <= 0 {
		return fmt.Errorf("vote window must be positive")
	}
	if cfg.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if cfg.SeekTolerance < 0 {
		return fmt.Errorf("seek tolerance must not be negative")
	}
	for _, t := range cfg.VoteTriggers {
		if t <= 0 {
			return fmt.Errorf("vote trigger %v must be positive", t)
		}
	}
	if cfg.TicketTTL < 0 {
		return fmt.Errorf("ticket ttl must not be negative")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

type publisher interface {
	PublishVotingClosed(ctx context.Context, event *events.VotingClosedEvent)
	PublishRoomClosed(ctx context.Context, event *events.RoomClosedEvent)
}

type app struct {
	logger      *slog.Logger
	rc          *redis.Client
	server      *http.Server
	roomService interface{ Shutdown() }
	connRepo    interface{ CloseAll() int }
	publisher   publisher
	// nil unless events go to a broker
	runPublisher func(ctx context.Context) error
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	// Validate already rejected bad levels
	_ = logLevel.UnmarshalText([]byte(strings.ToUpper(level)))

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h)
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func newApp(cfg *AppConfig, rc *redis.Client, logger *slog.Logger) (*app, error) {
	entries := catalog.DefaultEntries()
	if cfg.CatalogPath != "" {
		loaded, err := catalogInmemory.LoadEntries(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		entries = loaded
	}

	catalogRepo, err := catalogInmemory.NewRepo(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog: %w", err)
	}

	a := &app{logger: logger, rc: rc}

	if cfg.AMQPURL != "" {
		p := rabbitmq.NewPublisher(cfg.AMQPURL, 1024, logger)
		a.publisher = p
		a.runPublisher = p.Run
	} else {
		logger.Info("no amqp url configured, room events are not published")
		a.publisher = events.NopPublisher{}
	}

	secret := cfg.Secret
	if secret == "" {
		logger.Warn("no secret configured, auth tokens will not survive a restart")
		if secret, err = generateSecret(); err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
	}

	roomCfg := room.DefaultConfig()
	roomCfg.Secret = secret
	roomCfg.MembersLimit = cfg.MembersLimit
	roomCfg.VotingWindow = cfg.VoteWindow
	roomCfg.IdleTimeout = cfg.IdleTimeout
	roomCfg.SeekTolerance = cfg.SeekTolerance
	roomCfg.ResyncThreshold = cfg.ResyncThreshold
	if len(cfg.VoteTriggers) > 0 {
		roomCfg.VoteTriggers = cfg.VoteTriggers
	}

	ticketRepo := ticketRedis.NewRepo(rc, logger)
	roomService := room.NewService(catalogRepo, ticketRepo, a.publisher, &roomCfg, logger)
	connRepo := connInmemory.NewRepo()

	controllerCfg := controller.DefaultConfig()
	controllerCfg.AdminSecret = cfg.AdminSecret
	controllerCfg.TicketTTL = cfg.TicketTTL

	c := controller.NewController(roomService, ticketRepo, connRepo, &controllerCfg, logger)

	a.roomService = roomService
	a.connRepo = connRepo
	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           c.GetMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *app) run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.runPublisher != nil {
		g.Go(func() error {
			return a.runPublisher(gCtx)
		})
	}

	g.Go(func() error {
		a.logger.InfoContext(gCtx, "starting server", "address", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := a.server.Shutdown(shutdownCtx)
		// hijacked websocket connections are not covered by Shutdown
		closed := a.connRepo.CloseAll()
		a.roomService.Shutdown()
		a.logger.Info("server stopped", "closed_connections", closed)

		return err
	})

	return g.Wait()
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logger := newLogger(cfg.LogLevel)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	a, err := newApp(cfg, rc, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	return a.run(ctx)
}
