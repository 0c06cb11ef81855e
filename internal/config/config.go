package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/BatmanBruc/bat-bot-referral/internal/logger"
)

const EnvPrefix = "REFBOT"

type Config struct {
	Log       logger.Config   `envconfig:"LOG"`
	HTTP      HTTPConfig      `envconfig:"HTTP"`
	Telegram  TelegramConfig  `envconfig:"TELEGRAM"`
	Store     StoreConfig     `envconfig:"STORE"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Postgres  PostgresConfig  `envconfig:"POSTGRES"`
	Referral  ReferralConfig  `envconfig:"REFERRAL"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
}

type HTTPConfig struct {
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	Port              string        `envconfig:"PORT" default:"8080"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"3s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"30s"`
	RequestLogging    bool          `envconfig:"REQUEST_LOGGING" default:"true"`
	MaxBodyBytes      int64         `envconfig:"MAX_BODY_BYTES" default:"65536"`
}

type TelegramConfig struct {
	Token        string        `envconfig:"TOKEN"`
	PollTimeout  time.Duration `envconfig:"POLL_TIMEOUT" default:"50s"`
	AdminUserIDs string        `envconfig:"ADMIN_USER_IDS"`
}

// Admins parses the comma/space separated admin id list.
func (t TelegramConfig) Admins() map[int64]bool {
	out := make(map[int64]bool)
	parts := strings.FieldsFunc(t.AdminUserIDs, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out[id] = true
	}
	return out
}

type StoreConfig struct {
	Backend    string `envconfig:"BACKEND" default:"redis"`
	MaxRetries int    `envconfig:"MAX_RETRIES" default:"16"`
}

type RedisConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
	Prefix   string `envconfig:"PREFIX" default:"bot_referral"`
	PoolSize int    `envconfig:"POOL_SIZE" default:"20"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type PostgresConfig struct {
	DSN      string `envconfig:"DSN"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Database string `envconfig:"NAME"`
	User     string `envconfig:"USER_NAME"`
	Password string `envconfig:"PASSWORD"`
}

type ReferralConfig struct {
	CompletionAward int64  `envconfig:"COMPLETION_AWARD" default:"1"`
	CallbackSecret  string `envconfig:"CALLBACK_SECRET"`
	OfferURL        string `envconfig:"OFFER_URL"`
	DefaultTopN     int    `envconfig:"DEFAULT_TOP_N" default:"10"`
}

type SchedulerConfig struct {
	Workers       int           `envconfig:"WORKERS" default:"3"`
	AuditInterval time.Duration `envconfig:"AUDIT_INTERVAL" default:"1h"`
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Load reads envFile (if present) without overriding variables that are
// already set, then processes REFBOT_* variables.
func Load(envFile string) (*Config, error) {
	if envFile = strings.TrimSpace(envFile); envFile != "" {
		_ = godotenv.Load(envFile)
	}
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("invalid store backend %q", c.Store.Backend)
	}
	if c.Referral.CompletionAward <= 0 {
		c.Referral.CompletionAward = 1
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 3
	}
	if strings.TrimSpace(c.Referral.CallbackSecret) == "" {
		return fmt.Errorf("%s_REFERRAL_CALLBACK_SECRET is required", EnvPrefix)
	}
	return nil
}
