package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "QUIZ"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Content  ContentConfig  `mapstructure:"content"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	RPCAddress        string        `mapstructure:"rpc_address"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// JoinURL prefixes the session code in join QR codes.
	JoinURL string `mapstructure:"join_url"`
}

type DatabaseConfig struct {
	// Driver is one of memory, gorm or postgres.
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type GameConfig struct {
	GracePeriod         time.Duration `mapstructure:"grace_period"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	LenientMatching     bool          `mapstructure:"lenient_matching"`
	NoBuzzerRevealDelay time.Duration `mapstructure:"no_buzzer_reveal_delay"`
	StatsTimeout        time.Duration `mapstructure:"stats_timeout"`
}

type ContentConfig struct {
	PacksDir string `mapstructure:"packs_dir"`
	// Featured categories are always placed on random boards.
	Featured []string `mapstructure:"featured"`
}

// NATSConfig enables result publishing when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Stream        string `mapstructure:"stream"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.send_queue_size", 64)
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.join_url", "quiz://join/")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "quiz")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "quiz")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("game.grace_period", 30*time.Second)
	v.SetDefault("game.idle_timeout", time.Hour)
	v.SetDefault("game.sweep_interval", time.Minute)
	v.SetDefault("game.lenient_matching", false)
	v.SetDefault("game.no_buzzer_reveal_delay", time.Duration(0))
	v.SetDefault("game.stats_timeout", 5*time.Second)

	v.SetDefault("content.packs_dir", "packs")
	v.SetDefault("content.featured", []string{})

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream", "QUIZ_EVENTS")
	v.SetDefault("nats.subject_prefix", "quiz.events")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path. A .env file in path is loaded into the process
// environment first, and QUIZ_* variables override file values (QUIZ_DATABASE_DRIVER for
// database.driver). A missing config file leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "gorm", "postgres":
	default:
		return fmt.Errorf("database.driver must be memory, gorm or postgres, got %q", c.Database.Driver)
	}
	if c.Game.GracePeriod <= 0 {
		return fmt.Errorf("game.grace_period must be positive")
	}
	if c.Game.SweepInterval <= 0 {
		return fmt.Errorf("game.sweep_interval must be positive")
	}
	return nil
}
