package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Security  SecuritySettings  `mapstructure:"security"`
	Audit     AuditSettings     `mapstructure:"audit"`
	Provider  ProviderSettings  `mapstructure:"provider"`
	Token     TokenSettings     `mapstructure:"token"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthSettings governs the session lifecycle and the legacy bypass credential.
type AuthSettings struct {
	SessionTTL time.Duration  `mapstructure:"session_ttl"`
	LoginPath  string         `mapstructure:"login_path"`
	Bypass     BypassSettings `mapstructure:"bypass"`
}

// BypassSettings describes the fixed provider-independent login shortcut
// carried over from the original system. It is a known security weakness;
// production deployments should disable it.
type BypassSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Identifier string `mapstructure:"identifier"`
	Secret     string `mapstructure:"secret"`
	SubjectID  string `mapstructure:"subject_id"`
	Email      string `mapstructure:"email"`
}

// SecuritySettings tunes the critical-action policy gates.
type SecuritySettings struct {
	CriticalMaxActions   int           `mapstructure:"critical_max_actions"`
	CriticalWindow       time.Duration `mapstructure:"critical_window"`
	MaintenanceStartHour int           `mapstructure:"maintenance_start_hour"`
	MaintenanceEndHour   int           `mapstructure:"maintenance_end_hour"`
}

// AuditSettings tunes retention and the suspicious-activity heuristic.
type AuditSettings struct {
	Backend                   string        `mapstructure:"backend"`
	MaxRecords                int           `mapstructure:"max_records"`
	SuspiciousWindow          time.Duration `mapstructure:"suspicious_window"`
	FailedLoginThreshold      int           `mapstructure:"failed_login_threshold"`
	VolumeThreshold           int           `mapstructure:"volume_threshold"`
	PermissionDenialThreshold int           `mapstructure:"permission_denial_threshold"`
}

// ProviderSettings selects and configures the identity provider client.
type ProviderSettings struct {
	Mode    string        `mapstructure:"mode"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TokenSettings configures HMAC signing of the bearer token the HTTP layer
// hands out for the single local session.
type TokenSettings struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type PostgresSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              int           `mapstructure:"db"`
	Password        string        `mapstructure:"password"`
	AuditKey        string        `mapstructure:"audit_key"`
	RateLimitPrefix string        `mapstructure:"rate_limit_prefix"`
	RateLimitTTL    time.Duration `mapstructure:"rate_limit_ttl"`
}

type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// RateLimitSettings configures the HTTP-level sliding window on login.
type RateLimitSettings struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
}

type TelemetrySettings struct {
	MetricsPort int `mapstructure:"metrics_port"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ACCESS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"auth.session_ttl",
		"auth.login_path",
		"auth.bypass.enabled",
		"auth.bypass.identifier",
		"auth.bypass.secret",
		"auth.bypass.subject_id",
		"auth.bypass.email",
		"security.critical_max_actions",
		"security.critical_window",
		"security.maintenance_start_hour",
		"security.maintenance_end_hour",
		"audit.backend",
		"audit.max_records",
		"audit.suspicious_window",
		"audit.failed_login_threshold",
		"audit.volume_threshold",
		"audit.permission_denial_threshold",
		"provider.mode",
		"provider.base_url",
		"provider.api_key",
		"provider.timeout",
		"token.secret",
		"token.issuer",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.audit_key",
		"redis.rate_limit_prefix",
		"redis.rate_limit_ttl",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"telemetry.metrics_port",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.Audit.MaxRecords <= 0 {
		return fmt.Errorf("audit.max_records must be positive")
	}
	if c.Security.CriticalMaxActions <= 0 {
		return fmt.Errorf("security.critical_max_actions must be positive")
	}
	if h := c.Security.MaintenanceStartHour; h < 0 || h > 23 {
		return fmt.Errorf("security.maintenance_start_hour out of range: %d", h)
	}
	if h := c.Security.MaintenanceEndHour; h < 0 || h > 23 {
		return fmt.Errorf("security.maintenance_end_hour out of range: %d", h)
	}
	if c.Auth.Bypass.Enabled && c.App.Env == "production" {
		return fmt.Errorf("auth.bypass must not be enabled in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "eclesia-access")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("auth.session_ttl", "8h")
	v.SetDefault("auth.login_path", "/login")
	v.SetDefault("auth.bypass.enabled", true)
	v.SetDefault("auth.bypass.identifier", "dizimista")
	v.SetDefault("auth.bypass.secret", "dizimo2024")
	v.SetDefault("auth.bypass.subject_id", "dizimista-local")
	v.SetDefault("auth.bypass.email", "dizimista@local")

	v.SetDefault("security.critical_max_actions", 5)
	v.SetDefault("security.critical_window", "60m")
	v.SetDefault("security.maintenance_start_hour", 22)
	v.SetDefault("security.maintenance_end_hour", 6)

	v.SetDefault("audit.backend", "memory")
	v.SetDefault("audit.max_records", 1000)
	v.SetDefault("audit.suspicious_window", "60m")
	v.SetDefault("audit.failed_login_threshold", 5)
	v.SetDefault("audit.volume_threshold", 100)
	v.SetDefault("audit.permission_denial_threshold", 10)

	v.SetDefault("provider.mode", "local")
	v.SetDefault("provider.base_url", "http://localhost:9999")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", "10s")

	v.SetDefault("token.secret", "dev-only-token-secret")
	v.SetDefault("token.issuer", "eclesia-access")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "eclesia")
	v.SetDefault("postgres.password", "eclesia_password")
	v.SetDefault("postgres.database", "eclesia")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.audit_key", "access:audit")
	v.SetDefault("redis.rate_limit_prefix", "access:rate_limit")
	v.SetDefault("redis.rate_limit_ttl", "2m")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "access")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)

	v.SetDefault("telemetry.metrics_port", 9090)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "ACCESS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
