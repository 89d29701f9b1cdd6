// Package config loads application configuration from an optional yaml file
// plus INGEST_* environment variables, and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Temporal TemporalConfig `yaml:"temporal" mapstructure:"temporal"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourcesConfig holds per-provider settings.
type SourcesConfig struct {
	UltraSignup UltraSignupConfig `yaml:"ultrasignup" mapstructure:"ultrasignup"`
	Ahotu       AhotuConfig       `yaml:"ahotu" mapstructure:"ahotu"`
}

// UltraSignupConfig configures the UltraSignup adapter. The API caps every
// response at ResultCap rows with no pagination, so fetches are windowed
// over Months x DistanceCategories.
type UltraSignupConfig struct {
	URL                string `yaml:"url" mapstructure:"url"`
	Months             []int  `yaml:"months" mapstructure:"months"`
	DistanceCategories []int  `yaml:"distance_categories" mapstructure:"distance_categories"`
	ResultCap          int    `yaml:"result_cap" mapstructure:"result_cap"`
}

// AhotuConfig configures the Ahotu adapter (paginated).
type AhotuConfig struct {
	URL        string    `yaml:"url" mapstructure:"url"`
	Zoom       []float64 `yaml:"zoom" mapstructure:"zoom"`
	Language   string    `yaml:"language" mapstructure:"language"`
	Activities []string  `yaml:"activities" mapstructure:"activities"`
}

// FetchConfig tunes the HTTP fetcher shared by all adapters.
type FetchConfig struct {
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	PolitenessMsec int    `yaml:"politeness_msec" mapstructure:"politeness_msec"`
}

// TemporalConfig configures the task-staging client and worker.
type TemporalConfig struct {
	HostPort          string `yaml:"host_port" mapstructure:"host_port"`
	Namespace         string `yaml:"namespace" mapstructure:"namespace"`
	WorkflowQueue     string `yaml:"workflow_queue" mapstructure:"workflow_queue"`
	FetchQueue        string `yaml:"fetch_queue" mapstructure:"fetch_queue"`
	ParseQueue        string `yaml:"parse_queue" mapstructure:"parse_queue"`
	UploadQueue       string `yaml:"upload_queue" mapstructure:"upload_queue"`
	UploadMaxAttempts int    `yaml:"upload_max_attempts" mapstructure:"upload_max_attempts"`
	SubmitConcurrency int    `yaml:"submit_concurrency" mapstructure:"submit_concurrency"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and environment
// variables prefixed with INGEST_.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("sources.ultrasignup.url", "")
	v.SetDefault("sources.ahotu.url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("sources.ultrasignup.months", monthRange())
	v.SetDefault("sources.ultrasignup.distance_categories", []int{6, 7, 8})
	v.SetDefault("sources.ultrasignup.result_cap", 100)
	v.SetDefault("sources.ahotu.zoom", []float64{68.0, 52.0, 1.2, -140.0})
	v.SetDefault("sources.ahotu.language", "en")
	v.SetDefault("sources.ahotu.activities", []string{"run"})
	v.SetDefault("fetch.user_agent", "ingest-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.politeness_msec", 1000)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.workflow_queue", "ingest")
	v.SetDefault("temporal.fetch_queue", "fetch")
	v.SetDefault("temporal.parse_queue", "parse")
	v.SetDefault("temporal.upload_queue", "upload")
	v.SetDefault("temporal.upload_max_attempts", 5)
	v.SetDefault("temporal.submit_concurrency", 8)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func monthRange() []int {
	months := make([]int, 12)
	for i := range months {
		months[i] = i + 1
	}
	return months
}

// InitLogger builds the global zap logger from LogConfig.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
