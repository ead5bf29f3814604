package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lendops/pkg/logging"
)

const Production = "production"

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"lendops"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"lendops"`
}

type AssignmentsOptions struct {
	Backend    string `env:"ASSIGNMENTS_BACKEND" envDefault:"postgres"` // postgres or sqlite
	SQLitePath string `env:"ASSIGNMENTS_SQLITE_PATH" envDefault:"data/assignments.db"`

	Cache       string        `env:"ASSIGNMENTS_CACHE" envDefault:"none"` // none, memory or redis
	CacheTTL    time.Duration `env:"ASSIGNMENTS_CACHE_TTL" envDefault:"10m"`
	CachePrefix string        `env:"ASSIGNMENTS_CACHE_PREFIX" envDefault:"assignments:current_owner"`

	// Keeps assignment_entities.current_owner_id derived from the open record.
	SyncCurrentOwner bool `env:"ASSIGNMENTS_SYNC_CURRENT_OWNER" envDefault:"true"`
	MaxBatchSize     int  `env:"ASSIGNMENTS_MAX_BATCH_SIZE" envDefault:"500"`

	// Prometheus Pushgateway base URL; empty disables the push after a CLI run.
	MetricsPushURL string `env:"ASSIGNMENTS_METRICS_PUSH_URL"`
	MetricsJob     string `env:"ASSIGNMENTS_METRICS_JOB" envDefault:"assignment_history"`
}

func (a *AssignmentsOptions) Validate() error {
	a.Backend = strings.ToLower(strings.TrimSpace(a.Backend))
	if a.Backend == "" {
		a.Backend = BackendPostgres
	}
	switch a.Backend {
	case BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("invalid ASSIGNMENTS_BACKEND=%q (expected postgres|sqlite)", a.Backend)
	}
	if a.Backend == BackendSQLite && strings.TrimSpace(a.SQLitePath) == "" {
		return fmt.Errorf("ASSIGNMENTS_SQLITE_PATH is required when ASSIGNMENTS_BACKEND is 'sqlite'")
	}

	a.Cache = strings.ToLower(strings.TrimSpace(a.Cache))
	if a.Cache == "" {
		a.Cache = CacheNone
	}
	switch a.Cache {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("invalid ASSIGNMENTS_CACHE=%q (expected none|memory|redis)", a.Cache)
	}
	if a.Cache != CacheNone && a.CacheTTL <= 0 {
		return fmt.Errorf("ASSIGNMENTS_CACHE_TTL must be positive, got %s", a.CacheTTL)
	}
	if a.MaxBatchSize <= 0 {
		return fmt.Errorf("ASSIGNMENTS_MAX_BATCH_SIZE must be positive, got %d", a.MaxBatchSize)
	}
	a.MetricsPushURL = strings.TrimSpace(a.MetricsPushURL)
	if a.MetricsPushURL != "" && strings.TrimSpace(a.MetricsJob) == "" {
		return fmt.Errorf("ASSIGNMENTS_METRICS_JOB is required when ASSIGNMENTS_METRICS_PUSH_URL is set")
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Assignments   AssignmentsOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Assignments.Validate(); err != nil {
		return fmt.Errorf("assignments configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
