package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Env string

const (
	Dev        Env = "development"
	Test       Env = "test"
	Preview    Env = "preview"
	Production Env = "production"
)

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	Queue           string
	RoutingKey      string
	Prefetch        int
	DeclareTopology bool
}

type TursoConfig struct {
	// DSN takes precedence over Path; either may be libsql://, https:// or file:.
	DSN   string
	Path  string
	Token string
}

type InngestConfig struct {
	AppID      string
	SigningKey string
	Dev        bool
	ServeHost  string
	ServePath  string
}

type AffiliateConfig struct {
	AmazonTag string
	TargetID  string
	WalmartID string
	BestBuyID string
	WayfairID string
}

type AlertsConfig struct {
	ThresholdPercent  decimal.Decimal
	ThresholdAmount   decimal.Decimal
	LowWindow         time.Duration
	ConfirmDelay      time.Duration
	MaxPerUserPerDay  int
	DispatchInterval  time.Duration
	DispatchBatchSize int
}

type FetchConfig struct {
	Enabled  bool
	Timeout  time.Duration
	RetryMax int
}

type DeadLinksConfig struct {
	Interval  time.Duration
	Delay     time.Duration
	BatchSize int
}

type Config struct {
	AppName string
	ENV     Env
	AppPort int
	AppURL  string

	LogLevel string

	// Postgres (optional; enabled only when DBHost + DBName are set).
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int
	DBName     string

	// Redis (optional; enabled only when RedisHost is set).
	RedisUser     string
	RedisPassword string
	RedisHost     string
	RedisPort     int
	RedisScheme   string

	Turso     TursoConfig
	RabbitMQ  RabbitMQConfig
	Inngest   InngestConfig
	Affiliate AffiliateConfig
	Alerts    AlertsConfig
	Fetch     FetchConfig
	DeadLinks DeadLinksConfig
}

func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "joinpounce")
	v.SetDefault("APP_ENV", string(Dev))
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("APP_URL", "https://joinpounce.com")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_SCHEME", "redis")

	v.SetDefault("rabbitmq.exchange", "pounce")
	v.SetDefault("rabbitmq.queue", "pounce.prices.observed")
	v.SetDefault("rabbitmq.routing_key", "prices.observed")
	v.SetDefault("rabbitmq.prefetch", 10)
	v.SetDefault("rabbitmq.declare_topology", true)

	v.SetDefault("inngest.app_id", "joinpounce")
	v.SetDefault("inngest.serve_path", "/api/inngest")

	v.SetDefault("amazon.affiliate_tag", "joinpounce-20")

	v.SetDefault("alerts.threshold_percent", "10")
	v.SetDefault("alerts.threshold_amount", "10")
	v.SetDefault("alerts.low_window", "720h")
	v.SetDefault("alerts.confirm_delay", "2h")
	v.SetDefault("alerts.max_per_user_per_day", 2)
	v.SetDefault("alerts.dispatch_interval", "1m")
	v.SetDefault("alerts.dispatch_batch_size", 50)

	v.SetDefault("fetch.enabled", false)
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.retry_max", 2)

	v.SetDefault("deadlinks.interval", "24h")
	v.SetDefault("deadlinks.delay", "1s")
	v.SetDefault("deadlinks.batch_size", 100)

	return v
}

func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName: v.GetString("APP_NAME"),
		ENV:     Env(strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))),
		AppPort: v.GetInt("APP_PORT"),
		AppURL:  strings.TrimRight(strings.TrimSpace(v.GetString("APP_URL")), "/"),

		LogLevel: v.GetString("LOG_LEVEL"),

		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetInt("DB_PORT"),
		DBName:     v.GetString("DB_NAME"),

		RedisUser:     v.GetString("REDIS_USER"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetInt("REDIS_PORT"),
		RedisScheme:   v.GetString("REDIS_SCHEME"),

		Turso: TursoConfig{
			DSN:   v.GetString("turso.database_url"),
			Path:  v.GetString("turso.path"),
			Token: v.GetString("turso.auth_token"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             v.GetString("rabbitmq.url"),
			Exchange:        v.GetString("rabbitmq.exchange"),
			Queue:           v.GetString("rabbitmq.queue"),
			RoutingKey:      v.GetString("rabbitmq.routing_key"),
			Prefetch:        v.GetInt("rabbitmq.prefetch"),
			DeclareTopology: v.GetBool("rabbitmq.declare_topology"),
		},
		Inngest: InngestConfig{
			AppID:      v.GetString("inngest.app_id"),
			SigningKey: v.GetString("inngest.signing_key"),
			Dev:        v.GetBool("inngest.dev"),
			ServeHost:  v.GetString("inngest.serve_host"),
			ServePath:  v.GetString("inngest.serve_path"),
		},
		Affiliate: AffiliateConfig{
			AmazonTag: v.GetString("amazon.affiliate_tag"),
			TargetID:  v.GetString("target.affiliate_id"),
			WalmartID: v.GetString("walmart.affiliate_id"),
			BestBuyID: v.GetString("bestbuy.affiliate_id"),
			WayfairID: v.GetString("wayfair.affiliate_id"),
		},
		Alerts: AlertsConfig{
			LowWindow:         v.GetDuration("alerts.low_window"),
			ConfirmDelay:      v.GetDuration("alerts.confirm_delay"),
			MaxPerUserPerDay:  v.GetInt("alerts.max_per_user_per_day"),
			DispatchInterval:  v.GetDuration("alerts.dispatch_interval"),
			DispatchBatchSize: v.GetInt("alerts.dispatch_batch_size"),
		},
		Fetch: FetchConfig{
			Enabled:  v.GetBool("fetch.enabled"),
			Timeout:  v.GetDuration("fetch.timeout"),
			RetryMax: v.GetInt("fetch.retry_max"),
		},
		DeadLinks: DeadLinksConfig{
			Interval:  v.GetDuration("deadlinks.interval"),
			Delay:     v.GetDuration("deadlinks.delay"),
			BatchSize: v.GetInt("deadlinks.batch_size"),
		},
	}

	switch cfg.ENV {
	case Dev, Test, Preview, Production:
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q", cfg.ENV)
	}
	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return nil, fmt.Errorf("invalid APP_PORT %d", cfg.AppPort)
	}
	if cfg.DBPort <= 0 || cfg.DBPort > 65535 {
		return nil, fmt.Errorf("invalid DB_PORT %d", cfg.DBPort)
	}
	if cfg.RedisPort <= 0 || cfg.RedisPort > 65535 {
		return nil, fmt.Errorf("invalid REDIS_PORT %d", cfg.RedisPort)
	}

	pct, err := decimal.NewFromString(strings.TrimSpace(v.GetString("alerts.threshold_percent")))
	if err != nil || pct.IsNegative() {
		return nil, fmt.Errorf("invalid ALERTS_THRESHOLD_PERCENT %q", v.GetString("alerts.threshold_percent"))
	}
	amt, err := decimal.NewFromString(strings.TrimSpace(v.GetString("alerts.threshold_amount")))
	if err != nil || amt.IsNegative() {
		return nil, fmt.Errorf("invalid ALERTS_THRESHOLD_AMOUNT %q", v.GetString("alerts.threshold_amount"))
	}
	cfg.Alerts.ThresholdPercent = pct
	cfg.Alerts.ThresholdAmount = amt

	if cfg.Alerts.LowWindow <= 0 {
		return nil, fmt.Errorf("invalid ALERTS_LOW_WINDOW %s", cfg.Alerts.LowWindow)
	}
	if cfg.Alerts.ConfirmDelay < 0 {
		return nil, fmt.Errorf("invalid ALERTS_CONFIRM_DELAY %s", cfg.Alerts.ConfirmDelay)
	}
	if cfg.Alerts.MaxPerUserPerDay <= 0 {
		return nil, fmt.Errorf("invalid ALERTS_MAX_PER_USER_PER_DAY %d", cfg.Alerts.MaxPerUserPerDay)
	}
	if cfg.Alerts.DispatchInterval <= 0 {
		return nil, fmt.Errorf("invalid ALERTS_DISPATCH_INTERVAL %s", cfg.Alerts.DispatchInterval)
	}
	if cfg.Alerts.DispatchBatchSize <= 0 {
		cfg.Alerts.DispatchBatchSize = 50
	}
	if cfg.Fetch.Timeout <= 0 {
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT %s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.RetryMax < 0 {
		return nil, fmt.Errorf("invalid FETCH_RETRY_MAX %d", cfg.Fetch.RetryMax)
	}
	if cfg.DeadLinks.Interval <= 0 {
		return nil, fmt.Errorf("invalid DEADLINKS_INTERVAL %s", cfg.DeadLinks.Interval)
	}
	if cfg.DeadLinks.BatchSize <= 0 {
		cfg.DeadLinks.BatchSize = 100
	}
	if cfg.RabbitMQ.Prefetch <= 0 {
		cfg.RabbitMQ.Prefetch = 1
	}

	return cfg, nil
}
