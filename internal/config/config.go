package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Telegram TelegramConfig `koanf:"telegram"`
	Discord  DiscordConfig  `koanf:"discord"`
	Relay    RelayConfig    `koanf:"relay"`
	Worker   WorkerConfig   `koanf:"worker"`
	Redis    RedisConfig    `koanf:"redis"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port             int    `koanf:"port" validate:"min=1,max=65535"`
	ExternalHostname string `koanf:"external_hostname"`
	// WebhookSecret is sent to Telegram as secret_token and checked on every inbound update.
	WebhookSecret string `koanf:"webhook_secret"`
}

type TelegramConfig struct {
	Token  string `koanf:"token" validate:"required"`
	APIURL string `koanf:"api_url" validate:"required,url"`

	// Username is the bot's @name; looked up with getMe when empty.
	Username string `koanf:"username"`
}

type DiscordConfig struct {
	WebhookURL string `koanf:"webhook_url" validate:"required,url"`
}

type RelayConfig struct {
	MaxFileMB       float64       `koanf:"max_file_mb" validate:"gt=0"`
	ScratchDir      string        `koanf:"scratch_dir" validate:"required"`
	DownloadTimeout time.Duration `koanf:"download_timeout" validate:"gt=0"`
	UploadTimeout   time.Duration `koanf:"upload_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

type WorkerConfig struct {
	MinWorkers  int           `koanf:"min_workers" validate:"min=0"`
	MaxWorkers  int           `koanf:"max_workers" validate:"min=1"`
	QueueSize   int           `koanf:"queue_size" validate:"min=1"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	DedupTTL time.Duration `koanf:"dedup_ttl"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// envMappings binds the deployment's environment variables to config paths.
var envMappings = map[string]string{
	"BOT_TOKEN":                "telegram.token",
	"TELEGRAM_API_URL":         "telegram.api_url",
	"BOT_USERNAME":             "telegram.username",
	"W_URL":                    "discord.webhook_url",
	"RENDER_EXTERNAL_HOSTNAME": "server.external_hostname",
	"PORT":                     "server.port",
	"WEBHOOK_SECRET":           "server.webhook_secret",
	"RELAY_MAX_FILE_MB":        "relay.max_file_mb",
	"RELAY_SCRATCH_DIR":        "relay.scratch_dir",
	"RELAY_DOWNLOAD_TIMEOUT":   "relay.download_timeout",
	"RELAY_UPLOAD_TIMEOUT":     "relay.upload_timeout",
	"HTTP_TIMEOUT":             "relay.request_timeout",
	"WORKER_MIN":               "worker.min_workers",
	"WORKER_MAX":               "worker.max_workers",
	"WORKER_QUEUE":             "worker.queue_size",
	"WORKER_IDLE_TIMEOUT":      "worker.idle_timeout",
	"REDIS_ADDR":               "redis.addr",
	"REDIS_USERNAME":           "redis.username",
	"REDIS_PASSWORD":           "redis.password",
	"REDIS_DB":                 "redis.db",
	"DEDUP_TTL":                "redis.dedup_ttl",
	"LOG_LEVEL":                "log.level",
	"LOG_JSON":                 "log.json",
}

// Default returns the configuration used when no environment overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 10000},
		Telegram: TelegramConfig{
			APIURL: "https://api.telegram.org",
		},
		Relay: RelayConfig{
			MaxFileMB:       25,
			ScratchDir:      filepath.Join(os.TempDir(), "tunerelay"),
			DownloadTimeout: 2 * time.Minute,
			UploadTimeout:   2 * time.Minute,
			RequestTimeout:  30 * time.Second,
		},
		Worker: WorkerConfig{
			MinWorkers:  1,
			MaxWorkers:  8,
			QueueSize:   64,
			IdleTimeout: time.Minute,
		},
		Redis: RedisConfig{DedupTTL: 24 * time.Hour},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads configuration from the process environment. A dotenv file at
// envFile is applied first when it exists; variables already set win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	return load()
}

func load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envMappings[key]
			if !ok || strings.TrimSpace(value) == "" {
				return "", nil
			}
			return path, strings.TrimSpace(value)
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	var result *multierror.Error
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				result = multierror.Append(result, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}
	if c.Worker.MaxWorkers < c.Worker.MinWorkers {
		result = multierror.Append(result, fmt.Errorf("worker: max_workers %d below min_workers %d",
			c.Worker.MaxWorkers, c.Worker.MinWorkers))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddress is the address the HTTP server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Server.Port)
}

// MaxFileBytes converts the megabyte limit into a byte count.
func (c *Config) MaxFileBytes() int64 {
	return int64(c.Relay.MaxFileMB * 1024 * 1024)
}
