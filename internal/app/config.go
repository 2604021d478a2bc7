package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/substratelabs/failurelens-backend/internal/data/db"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/anthropic"
	"github.com/substratelabs/failurelens-backend/internal/platform/resend"
	"github.com/substratelabs/failurelens-backend/internal/temporalx"
)

const ServiceName = "failurelens-api"

type Config struct {
	Port        string
	LogMode     string
	Environment string

	DatabaseURL   string
	DBAutoMigrate bool
	DBPool        db.PoolConfig

	SupabaseJWTSecret string
	SupabaseJWKSURL   string
	CronSecret        string

	Anthropic anthropic.Config

	StripeSecretKey     string
	StripeWebhookSecret string
	// StripePriceIDs maps plan name to Stripe price id.
	StripePriceIDs map[string]string
	PricingTTL     time.Duration

	Resend          resend.Config
	AlertRecipients []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Temporal      temporalx.Config
	KnowledgeCron string

	AnalysesPerMinute int
	DefaultPerMinute  int
	CORSOrigins       []string

	Aggregator knowledge.AggregatorConfig
	Otel       observability.OtelConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_mode", "development")
	v.SetDefault("environment", "development")
	v.SetDefault("db_automigrate", true)
	v.SetDefault("db_max_open_conns", 20)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime_seconds", 1800)
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("anthropic_timeout_seconds", 60)
	v.SetDefault("anthropic_max_retries", 3)
	v.SetDefault("anthropic_rps", 0)
	v.SetDefault("anthropic_burst", 2)
	v.SetDefault("pricing_ttl_seconds", 600)
	v.SetDefault("redis_db", 0)
	v.SetDefault("temporal_dial_timeout_seconds", 5)
	v.SetDefault("temporal_dial_max_wait_seconds", 60)
	v.SetDefault("temporal_worker_concurrency", 2)
	v.SetDefault("knowledge_refresh_cron", "0 3 * * *")
	v.SetDefault("knowledge_aggregate_max_feedback", 5000)
	v.SetDefault("rate_limit_analyses_per_minute", 10)
	v.SetDefault("rate_limit_default_per_minute", 120)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter", "otlp")
	v.SetDefault("otel_sample_ratio", 1.0)
}

// LoadConfig layers defaults, an optional YAML file and the environment, in
// increasing precedence. configFile may be empty to search the usual paths.
func LoadConfig(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/failurelens")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		Port:        v.GetString("port"),
		LogMode:     v.GetString("log_mode"),
		Environment: v.GetString("environment"),

		DatabaseURL:   databaseURL(v),
		DBAutoMigrate: v.GetBool("db_automigrate"),
		DBPool: db.PoolConfig{
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: seconds(v, "db_conn_max_lifetime_seconds"),
		},

		SupabaseJWTSecret: strings.TrimSpace(v.GetString("supabase_jwt_secret")),
		SupabaseJWKSURL:   strings.TrimSpace(v.GetString("supabase_jwks_url")),
		CronSecret:        strings.TrimSpace(v.GetString("cron_secret")),

		Anthropic: anthropic.Config{
			APIKey:            strings.TrimSpace(v.GetString("anthropic_api_key")),
			BaseURL:           v.GetString("anthropic_base_url"),
			Model:             v.GetString("anthropic_model"),
			Timeout:           seconds(v, "anthropic_timeout_seconds"),
			MaxRetries:        v.GetInt("anthropic_max_retries"),
			RequestsPerSecond: v.GetFloat64("anthropic_rps"),
			Burst:             v.GetInt("anthropic_burst"),
		},

		StripeSecretKey:     strings.TrimSpace(v.GetString("stripe_secret_key")),
		StripeWebhookSecret: strings.TrimSpace(v.GetString("stripe_webhook_secret")),
		StripePriceIDs:      priceIDs(v),
		PricingTTL:          seconds(v, "pricing_ttl_seconds"),

		Resend: resend.Config{
			APIKey:           strings.TrimSpace(v.GetString("resend_api_key")),
			BaseURL:          v.GetString("resend_base_url"),
			DefaultFromEmail: strings.TrimSpace(v.GetString("resend_from_email")),
		},
		AlertRecipients: splitList(v.GetString("alert_email_recipients")),

		RedisAddr:     strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		Temporal: temporalx.Config{
			Address:               v.GetString("temporal_address"),
			Namespace:             v.GetString("temporal_namespace"),
			TaskQueue:             v.GetString("temporal_task_queue"),
			ClientCertPath:        strings.TrimSpace(v.GetString("temporal_client_cert_path")),
			ClientKeyPath:         strings.TrimSpace(v.GetString("temporal_client_key_path")),
			ClientCAPath:          strings.TrimSpace(v.GetString("temporal_client_ca_path")),
			AutoRegisterNamespace: v.GetBool("temporal_auto_register_namespace"),
			DialTimeout:           seconds(v, "temporal_dial_timeout_seconds"),
			DialMaxWait:           seconds(v, "temporal_dial_max_wait_seconds"),
			WorkerConcurrency:     v.GetInt("temporal_worker_concurrency"),
		}.WithDefaults(),
		KnowledgeCron: v.GetString("knowledge_refresh_cron"),

		AnalysesPerMinute: v.GetInt("rate_limit_analyses_per_minute"),
		DefaultPerMinute:  v.GetInt("rate_limit_default_per_minute"),
		CORSOrigins:       splitList(v.GetString("cors_allowed_origins")),

		Aggregator: knowledge.AggregatorConfig{
			MaxFeedback: v.GetInt("knowledge_aggregate_max_feedback"),
		},
		Otel: observability.OtelConfig{
			Enabled:     v.GetBool("otel_enabled"),
			ServiceName: ServiceName,
			Environment: v.GetString("environment"),
			Version:     v.GetString("version"),
			Exporter:    v.GetString("otel_exporter"),
			Endpoint:    v.GetString("otel_exporter_otlp_endpoint"),
			Headers:     observability.ParseHeaders(v.GetString("otel_exporter_otlp_headers")),
			Insecure:    v.GetBool("otel_exporter_otlp_insecure"),
			SampleRatio: v.GetFloat64("otel_sample_ratio"),
		},
	}
	return cfg, nil
}

// Validate checks what every process needs; the API additionally needs the
// JWT secret and the LLM key.
func (c Config) Validate(api bool) error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if api {
		if c.SupabaseJWTSecret == "" && c.SupabaseJWKSURL == "" {
			missing = append(missing, "SUPABASE_JWT_SECRET or SUPABASE_JWKS_URL")
		}
		if c.Anthropic.APIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func databaseURL(v *viper.Viper) string {
	if dsn := strings.TrimSpace(v.GetString("database_url")); dsn != "" {
		return dsn
	}
	host := strings.TrimSpace(v.GetString("postgres_host"))
	if host == "" {
		return ""
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host,
		v.GetString("postgres_port"),
		v.GetString("postgres_user"),
		v.GetString("postgres_password"),
		v.GetString("postgres_db"),
		v.GetString("postgres_sslmode"),
	)
}

func priceIDs(v *viper.Viper) map[string]string {
	out := map[string]string{}
	if id := strings.TrimSpace(v.GetString("stripe_price_pro")); id != "" {
		out[types.PlanPro] = id
	}
	if id := strings.TrimSpace(v.GetString("stripe_price_team")); id != "" {
		out[types.PlanTeam] = id
	}
	return out
}

func seconds(v *viper.Viper, key string) time.Duration {
	n := v.GetInt(key)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Second
}

// splitList accepts comma or whitespace separated values.
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
