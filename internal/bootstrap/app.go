package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"zerocode-chat/internal/app"
	"zerocode-chat/internal/config"
	"zerocode-chat/internal/conversation"
	"zerocode-chat/internal/oracle"
	"zerocode-chat/internal/pkg/logging"
	mysqlClient "zerocode-chat/internal/platform/mysql"
	rabbitmqClient "zerocode-chat/internal/platform/rabbitmq"
	redisClient "zerocode-chat/internal/platform/redis"
	"zerocode-chat/internal/repository"
	"zerocode-chat/internal/store"
	"zerocode-chat/internal/worker"
)

// PingStore is a store that can report its own health.
type PingStore interface {
	store.Store
	Ping(ctx context.Context) error
}

type App struct {
	Config        *config.Config
	Store         PingStore
	Redis         *redis.Client
	MySQL         *gorm.DB
	MQConn        *amqp.Connection
	ArchiveWorker *worker.ArchiveWorker
	Archive       *repository.MessageRepository

	Sessions    *conversation.Manager
	AuthService *app.AuthService
	ChatService *app.ChatService

	cancel    context.CancelFunc
	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logging.Setup(cfg.App.Env, cfg.App.LogLevel)
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	logger := logging.Component("bootstrap")

	st, redisCli, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.Redis = redisCli

	var archiver conversation.Archiver
	if cfg.RabbitMQ.Enabled {
		if archiver, err = a.startArchive(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	} else {
		logger.Info().Msg("transcript archive disabled")
	}

	o, err := NewOracle(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Sessions = conversation.NewManager(
		sessionCtx,
		cfg.Session.HistoryKey,
		st,
		o,
		archiver,
		conversation.WithHistoryLimit(cfg.Session.HistoryLimit),
		conversation.WithMaxMessages(cfg.Session.MaxMessages),
		conversation.WithReplyTimeout(cfg.Session.ReplyTimeout()),
	)
	a.AuthService = app.NewAuthService(
		st,
		cfg.Session.AuthKey,
		cfg.Auth.JWTSecret,
		cfg.TokenTTL(),
		cfg.Auth.AvatarBaseURL,
		cfg.Auth.SimulatedLatency(),
	)
	var archiveReader app.ArchiveReader
	if a.Archive != nil {
		archiveReader = a.Archive
	}
	a.ChatService = app.NewChatService(a.Sessions, archiveReader)

	logger.Info().Str("oracle", cfg.Session.Oracle).Bool("redis", cfg.Redis.Enabled).Bool("archive", cfg.RabbitMQ.Enabled).Msg("application ready")
	return a, nil
}

// OpenStore returns the Redis store when enabled, otherwise an in-process map.
func OpenStore(ctx context.Context, cfg *config.Config) (PingStore, *redis.Client, error) {
	if !cfg.Redis.Enabled {
		logger := logging.Component("bootstrap")
		logger.Warn().Msg("redis disabled, chat logs live in memory only")
		return store.NewMemoryStore(), nil, nil
	}
	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
	return store.NewRedisStore(redisCli, cfg.App.Name, ttl), redisCli, nil
}

func NewOracle(cfg *config.Config) (oracle.Oracle, error) {
	switch cfg.Session.Oracle {
	case "keyword":
		return oracle.NewKeywordOracle(
			oracle.WithDelay(cfg.Session.MinReplyDelay(), cfg.Session.MaxReplyDelay()),
		), nil
	case "llm":
		return oracle.NewLLMOracle(oracle.LLMConfig{
			BaseURL:      cfg.LLM.BaseURL,
			APIKey:       cfg.LLM.APIKey,
			Model:        cfg.LLM.Model,
			SystemPrompt: cfg.LLM.SystemPrompt,
		}, &http.Client{Timeout: 90 * time.Second}), nil
	}
	return nil, fmt.Errorf("unknown oracle %q", cfg.Session.Oracle)
}

func (a *App) startArchive(ctx context.Context) (conversation.Archiver, error) {
	mysqlDB, err := mysqlClient.New(ctx, a.Config.MySQLDSN())
	if err != nil {
		return nil, err
	}
	a.MySQL = mysqlDB

	messageRepo := repository.NewMessageRepository(mysqlDB)
	if err := messageRepo.AutoMigrate(); err != nil {
		return nil, err
	}
	a.Archive = messageRepo

	mqConn, err := rabbitmqClient.New(ctx, a.Config.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	a.MQConn = mqConn

	archiveWorker := worker.NewArchiveWorker(mqConn, messageRepo, a.Config.RabbitMQ.ArchiveQueue)
	if err := archiveWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start archive worker failed: %w", err)
	}
	a.ArchiveWorker = archiveWorker

	return rabbitmqClient.NewArchivePublisher(mqConn, a.Config.RabbitMQ.ArchiveQueue), nil
}

// Close stops sessions first so no reply publishes into a closed broker.
func (a *App) Close() error {
	var closeErr error
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.ArchiveWorker != nil {
		a.ArchiveWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
