package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/watch2earn/cinema-server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:  "SERVER_SECRET",
		flagKey: "secret",
		usage:   "Secret for signing auth tokens",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:  "REDIS_PASSWORD",
		flagKey: "redis-password",
		usage:   "Redis password",
	}
	redisDB = configVar[int]{
		envKey:  "REDIS_DB",
		flagKey: "redis-db",
		usage:   "Redis database",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 100,
		usage:        "Maximum number of members in a room",
	}
	voteWindow = configVar[time.Duration]{
		envKey:       "SERVER_VOTE_WINDOW",
		flagKey:      "vote-window",
		defaultValue: 20 * time.Second,
		usage:        "How long a voting session stays open",
	}
	voteTriggers = configVar[[]float64]{
		envKey:       "SERVER_VOTE_TRIGGERS",
		flagKey:      "vote-triggers",
		defaultValue: []float64{30, 90, 180},
		usage:        "Playback positions in seconds that open a vote",
	}
	idleTimeout = configVar[time.Duration]{
		envKey:       "SERVER_IDLE_TIMEOUT",
		flagKey:      "idle-timeout",
		defaultValue: 30 * time.Minute,
		usage:        "How long an empty room is kept",
	}
	seekTolerance = configVar[float64]{
		envKey:       "SERVER_SEEK_TOLERANCE",
		flagKey:      "seek-tolerance",
		defaultValue: 1,
		usage:        "Seeks closer than this many seconds are ignored",
	}
	resyncThreshold = configVar[float64]{
		envKey:       "SERVER_RESYNC_THRESHOLD",
		flagKey:      "resync-threshold",
		defaultValue: 5,
		usage:        "Drift in seconds that triggers a private resync, 0 disables",
	}
	catalogPath = configVar[string]{
		envKey:  "SERVER_CATALOG_PATH",
		flagKey: "catalog-path",
		usage:   "Room catalog file, the built-in catalog is used when empty",
	}
	amqpURL = configVar[string]{
		envKey:  "AMQP_URL",
		flagKey: "amqp-url",
		usage:   "RabbitMQ url for room events, events are dropped when empty",
	}
	adminSecret = configVar[string]{
		envKey:  "SERVER_ADMIN_SECRET",
		flagKey: "admin-secret",
		usage:   "Secret for the ticket admin api, the api is disabled when empty",
	}
	ticketTTL = configVar[time.Duration]{
		envKey:  "SERVER_TICKET_TTL",
		flagKey: "ticket-ttl",
		usage:   "Lifetime of granted tickets, 0 means forever",
	}
)

func bind[T any](v configVar[T]) {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	pflag.String(secret.flagKey, secret.defaultValue, secret.usage)
	pflag.String(host.flagKey, host.defaultValue, host.usage)
	pflag.Int(port.flagKey, port.defaultValue, port.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.String(redisHost.flagKey, redisHost.defaultValue, redisHost.usage)
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, redisPort.usage)
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, redisPassword.usage)
	pflag.Int(redisDB.flagKey, redisDB.defaultValue, redisDB.usage)
	pflag.Int(membersLimit.flagKey, membersLimit.defaultValue, membersLimit.usage)
	pflag.Duration(voteWindow.flagKey, voteWindow.defaultValue, voteWindow.usage)
	pflag.Float64Slice(voteTriggers.flagKey, voteTriggers.defaultValue, voteTriggers.usage)
	pflag.Duration(idleTimeout.flagKey, idleTimeout.defaultValue, idleTimeout.usage)
	pflag.Float64(seekTolerance.flagKey, seekTolerance.defaultValue, seekTolerance.usage)
	pflag.Float64(resyncThreshold.flagKey, resyncThreshold.defaultValue, resyncThreshold.usage)
	pflag.String(catalogPath.flagKey, catalogPath.defaultValue, catalogPath.usage)
	pflag.String(amqpURL.flagKey, amqpURL.defaultValue, amqpURL.usage)
	pflag.String(adminSecret.flagKey, adminSecret.defaultValue, adminSecret.usage)
	pflag.Duration(ticketTTL.flagKey, ticketTTL.defaultValue, ticketTTL.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	bind(secret)
	bind(host)
	bind(port)
	bind(logLevel)
	bind(redisHost)
	bind(redisPort)
	bind(redisPassword)
	bind(redisDB)
	bind(membersLimit)
	bind(voteWindow)
	bind(voteTriggers)
	bind(idleTimeout)
	bind(seekTolerance)
	bind(resyncThreshold)
	bind(catalogPath)
	bind(amqpURL)
	bind(adminSecret)
	bind(ticketTTL)

	triggers, err := parseTriggers(viper.Get(voteTriggers.flagKey))
	if err != nil {
		log.Fatal(err)
	}

	return &app.AppConfig{
		Secret:          viper.GetString(secret.flagKey),
		Host:            viper.GetString(host.flagKey),
		Port:            viper.GetInt(port.flagKey),
		LogLevel:        viper.GetString(logLevel.flagKey),
		RedisHost:       viper.GetString(redisHost.flagKey),
		RedisPort:       viper.GetInt(redisPort.flagKey),
		RedisPassword:   viper.GetString(redisPassword.flagKey),
		RedisDB:         viper.GetInt(redisDB.flagKey),
		MembersLimit:    viper.GetInt(membersLimit.flagKey),
		VoteWindow:      viper.GetDuration(voteWindow.flagKey),
		VoteTriggers:    triggers,
		IdleTimeout:     viper.GetDuration(idleTimeout.flagKey),
		SeekTolerance:   viper.GetFloat64(seekTolerance.flagKey),
		ResyncThreshold: viper.GetFloat64(resyncThreshold.flagKey),
		CatalogPath:     viper.GetString(catalogPath.flagKey),
		AMQPURL:         viper.GetString(amqpURL.flagKey),
		AdminSecret:     viper.GetString(adminSecret.flagKey),
		TicketTTL:       viper.GetDuration(ticketTTL.flagKey),
	}
}

func main() {
	// .env is optional
	_ = godotenv.Load(".env")

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(context.Background(), appConfig); err != nil {
		log.Fatal(err)
	}
}
