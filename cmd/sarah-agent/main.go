package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kalkia/sarah-agent/internal/api"
	"github.com/kalkia/sarah-agent/internal/campaign"
	"github.com/kalkia/sarah-agent/internal/crm"
	"github.com/kalkia/sarah-agent/internal/flow"
	"github.com/kalkia/sarah-agent/internal/genai"
	"github.com/kalkia/sarah-agent/internal/scheduler"
	"github.com/kalkia/sarah-agent/internal/store"
	"github.com/kalkia/sarah-agent/internal/suppress"
	"github.com/kalkia/sarah-agent/internal/sweep"
	"github.com/kalkia/sarah-agent/internal/twiliosms"
	"github.com/kalkia/sarah-agent/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for agent state data
	DefaultStateDir = "/var/lib/sarah-agent"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "sarah-agent.db"
	// DefaultSweepSchedule runs the context sweep every five minutes
	DefaultSweepSchedule = "*/5 * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping follow-up agent")
	if err := run(ctx, flags); err != nil {
		slog.Error("Follow-up agent failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Follow-up agent exited successfully")
}

// Config holds environment configuration
type Config struct {
	CoreAPIURL    string
	CoreAPIKey    string
	OpenAIKey     string
	OpenAIModel   string
	RedisURL      string
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	AgentName     string
	SweepSchedule string
	SweepEnabled  bool
	OptOutAck     string
}

// Flags holds command line flag values
type Flags struct {
	coreAPIURL    *string
	coreAPIKey    *string
	openaiKey     *string
	openaiModel   *string
	redisURL      *string
	dbDSN         *string
	apiAddr       *string
	agentName     *string
	sweepSchedule *string
	sweepEnabled  *bool
	optOutAck     *string
}

// initializeLogger sets up structured logging
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		CoreAPIURL:    os.Getenv("CORE_API_URL"),
		CoreAPIKey:    os.Getenv("CORE_API_KEY"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("SARAH_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		AgentName:     os.Getenv("AGENT_NAME"),
		SweepSchedule: os.Getenv("SWEEP_SCHEDULE"),
		SweepEnabled:  util.ParseBoolEnv("SWEEP_ENABLED", true),
		OptOutAck:     os.Getenv("OPTOUT_ACK"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SARAH_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.AgentName == "" {
		config.AgentName = "Sarah"
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = DefaultSweepSchedule
	}

	slog.Debug("environment variables loaded",
		"CORE_API_URL_SET", config.CoreAPIURL != "",
		"CORE_API_KEY_SET", config.CoreAPIKey != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"AGENT_NAME", config.AgentName,
		"SWEEP_SCHEDULE", config.SweepSchedule,
		"SWEEP_ENABLED", config.SweepEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		coreAPIURL:    flag.String("core-api-url", config.CoreAPIURL, "conversation store API base URL (overrides $CORE_API_URL)"),
		coreAPIKey:    flag.String("core-api-key", config.CoreAPIKey, "conversation store API key (overrides $CORE_API_KEY)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)"),
		redisURL:      flag.String("redis-url", config.RedisURL, "Redis URL for suppression flags (overrides $REDIS_URL; empty uses in-memory flags)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the job queue (overrides $DATABASE_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		agentName:     flag.String("agent-name", config.AgentName, "agent persona name (overrides $AGENT_NAME)"),
		sweepSchedule: flag.String("sweep-schedule", config.SweepSchedule, "cron schedule for the context sweep (overrides $SWEEP_SCHEDULE)"),
		sweepEnabled:  flag.Bool("sweep-enabled", config.SweepEnabled, "enable the periodic context sweep (overrides $SWEEP_ENABLED)"),
		optOutAck:     flag.String("optout-ack", config.OptOutAck, "unsubscribe acknowledgment body (overrides $OPTOUT_ACK; empty sends no reply)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"coreAPIURL_set", *flags.coreAPIURL != "",
		"coreAPIKey_set", *flags.coreAPIKey != "",
		"openaiKey_set", *flags.openaiKey != "",
		"redisURL_set", *flags.redisURL != "",
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"agentName", *flags.agentName,
		"sweepSchedule", *flags.sweepSchedule,
		"sweepEnabled", *flags.sweepEnabled)

	return flags
}

// run wires all modules together and blocks until shutdown.
func run(ctx context.Context, flags Flags) error {
	crmClient, err := crm.NewClient(
		crm.WithBaseURL(*flags.coreAPIURL),
		crm.WithAPIKey(*flags.coreAPIKey),
	)
	if err != nil {
		return err
	}

	genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	sender, err := twiliosms.NewClient()
	if err != nil {
		return err
	}

	var flagStore suppress.Flags
	if *flags.redisURL != "" {
		redisFlags, err := suppress.NewRedisFlags(ctx, suppress.WithURL(*flags.redisURL))
		if err != nil {
			return err
		}
		defer redisFlags.Close()
		flagStore = redisFlags
	} else {
		slog.Warn("No Redis URL configured, using in-memory suppression flags")
		flagStore = suppress.NewMemoryFlags()
	}

	jobs, err := buildJobRepo(*flags.dbDSN)
	if err != nil {
		return err
	}

	campaigns := campaign.NewScheduler(jobs, flagStore, sender, crmClient, *flags.agentName)
	runner := store.NewJobRunner(jobs, store.DefaultPollInterval)
	campaigns.Register(runner)
	if err := runner.RecoverStaleJobs(); err != nil {
		slog.Error("Failed to recover stale jobs", "error", err)
	}
	go runner.Run(ctx)

	if *flags.sweepEnabled {
		worker := sweep.NewWorker(crmClient, sender, flagStore, sweep.WithAgentName(*flags.agentName))
		cronSched := scheduler.NewScheduler()
		defer cronSched.Stop()
		if err := cronSched.AddJob(*flags.sweepSchedule, func() {
			if err := worker.Sweep(ctx); err != nil {
				slog.Error("Sweep pass failed", "error", err)
			}
		}); err != nil {
			return err
		}
		slog.Info("Sweep worker scheduled", "schedule", *flags.sweepSchedule)
	} else {
		slog.Info("Sweep worker disabled")
	}

	replies := flow.NewReplyGenerator(genaiClient, *flags.agentName)
	engine := flow.NewEngine(crmClient, flagStore, replies, flow.WithOptOutAck(*flags.optOutAck))

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, campaigns, apiOpts...)
	return server.Run(ctx)
}

// buildJobRepo selects the job queue backend from the DSN.
func buildJobRepo(dsn string) (store.JobRepo, error) {
	if dsn == "" {
		slog.Warn("No database DSN provided, using in-memory job queue")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL job queue")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite job queue", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}
