package config

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	CTT     CTTConfig     `yaml:"ctt" mapstructure:"ctt"`
	Secrets SecretsConfig `yaml:"secrets" mapstructure:"secrets"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Client  ClientConfig  `yaml:"client" mapstructure:"client"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // csv, sqlite or postgres
	Path        string `yaml:"path" mapstructure:"path"`     // csv file or sqlite dsn
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CTTConfig holds settings for the external postal code lookup API.
type CTTConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// SecretsConfig locates the file holding the lookup API key.
type SecretsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the lookup HTTP server.
type ServerConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	ListShape string `yaml:"list_shape" mapstructure:"list_shape"`
}

// ClientConfig configures the interactive client.
type ClientConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POSTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "csv")
	v.SetDefault("store.path", "updated_data.csv")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("ctt.base_url", "https://www.cttcodigopostal.pt/api/v1")
	v.SetDefault("ctt.timeout_secs", 15)
	v.SetDefault("ctt.requests_per_second", 0)
	v.SetDefault("secrets.path", "secrets.txt")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.list_shape", "")
	v.SetDefault("client.base_url", "http://127.0.0.1:5000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks the settings a command mode depends on. Mode is one of
// serve, client, local, import or update.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "csv", "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the "+c.Store.Driver+" driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be one of csv, sqlite, postgres")
		}
	}
	checkCTT := func() {
		if c.CTT.BaseURL == "" {
			problems = append(problems, "ctt.base_url is required")
		}
		if c.CTT.RequestsPerSecond < 0 {
			problems = append(problems, "ctt.requests_per_second must be >= 0")
		}
	}

	switch mode {
	case "serve":
		checkStore()
		checkCTT()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		switch c.Server.ListShape {
		case "", "map", "list":
		default:
			problems = append(problems, "server.list_shape must be map or list")
		}
	case "client":
		if c.Client.BaseURL == "" {
			problems = append(problems, "client.base_url is required")
		}
	case "local", "update":
		checkStore()
		checkCTT()
		if c.Secrets.Path == "" {
			problems = append(problems, "secrets.path is required")
		}
	case "import":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ReadAPIKey returns the first line of the secret file at path.
// A missing file or a blank first line is an error.
func ReadAPIKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "config: open secret file %s", path)
	}
	defer f.Close() //nolint:errcheck

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", eris.Wrapf(err, "config: read secret file %s", path)
		}
		return "", eris.Errorf("config: secret file %s is empty", path)
	}

	key := strings.TrimSpace(sc.Text())
	if key == "" {
		return "", eris.Errorf("config: secret file %s has a blank api key", path)
	}
	return key, nil
}

// InitLogger initializes the global zap logger.
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
