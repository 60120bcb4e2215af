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
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking in the working directory first
// and then in the nearest parent that holds a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}
	if len(existingFiles) == 0 {
		if root := findModuleRoot(); root != "" {
			for _, file := range envFiles {
				p := filepath.Join(root, file)
				if fileExists(p) {
					existingFiles = append(existingFiles, p)
				}
			}
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"campfin"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"4"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type ETLOptions struct {
	WorkDir   string `env:"ETL_WORK_DIR" envDefault:""`
	BatchSize int    `env:"ETL_BATCH_SIZE" envDefault:"5000"`
	// Source dates carry no zone; the upstream filer is in Mountain time.
	Timezone string `env:"ETL_TIMEZONE" envDefault:"America/Denver"`

	LockBackend string        `env:"ETL_LOCK_BACKEND" envDefault:"none"` // none or redis
	LockTTL     time.Duration `env:"ETL_LOCK_TTL" envDefault:"30m"`

	location *time.Location
}

// Validate checks the ETL configuration for errors
func (o *ETLOptions) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("ETL_BATCH_SIZE must be positive, got %d", o.BatchSize)
	}
	if o.BatchSize > 1000000 {
		return fmt.Errorf("ETL_BATCH_SIZE too high, maximum is 1,000,000, got %d", o.BatchSize)
	}
	backend := strings.ToLower(strings.TrimSpace(o.LockBackend))
	switch backend {
	case "", "none":
		backend = "none"
	case "redis":
	default:
		return fmt.Errorf("invalid ETL_LOCK_BACKEND=%q (expected none|redis)", o.LockBackend)
	}
	o.LockBackend = backend
	if o.LockTTL <= 0 {
		return fmt.Errorf("ETL_LOCK_TTL must be positive, got %s", o.LockTTL)
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return fmt.Errorf("invalid ETL_TIMEZONE=%q: %w", o.Timezone, err)
	}
	o.location = loc
	return nil
}

// Location returns the zone used to interpret zone-less source dates.
func (o *ETLOptions) Location() *time.Location {
	if o.location == nil {
		return time.UTC
	}
	return o.location
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"campfin-etl"`
}

type Configuration struct {
	Database      DatabaseOptions
	ETL           ETLOptions
	OpenTelemetry OpenTelemetryOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"campfin"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath          string `env:"LOG_PATH" envDefault:""`

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
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.ETL.Validate(); err != nil {
		return fmt.Errorf("etl configuration error: %w", err)
	}
	if c.ETL.LockBackend == "redis" && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when ETL_LOCK_BACKEND is 'redis'")
	}
	if c.ETL.WorkDir == "" {
		c.ETL.WorkDir = os.TempDir()
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

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
