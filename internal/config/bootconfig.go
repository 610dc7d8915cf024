package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process boot configuration: everything the entrypoint needs
// to wire up Store/Loader/REST/webhook before the reactive Policy record is
// ever read. This is distinct from Policy, which the Loader (this package's
// other half) reloads reactively from the cluster store.
type Config struct {
	Profile DeploymentProfile `mapstructure:"profile"`

	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfigBoot `mapstructure:"log"`
	Auth    AuthBootConfig `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis   RedisConfig   `mapstructure:"redis"`
	RateLimit RateLimitBootConfig `mapstructure:"rate_limit"`
	TLS     TLSConfig     `mapstructure:"tls"`
}

// DeploymentProfile selects the persistence backend for the exemption and
// history stores: "lite" embeds sqlite, "standard" points at Postgres,
// and "memory" keeps everything in-process for tests.
type DeploymentProfile string

const (
	ProfileMemory   DeploymentProfile = "memory"
	ProfileLite     DeploymentProfile = "lite"
	ProfileStandard DeploymentProfile = "standard"
)

// StoreConfig locates the cluster-backed ConfigMap records.
type StoreConfig struct {
	Namespace              string `mapstructure:"namespace"`
	ConfigMapName          string `mapstructure:"configmap_name"`
	SchedulesConfigMapName string `mapstructure:"schedules_configmap_name"`
	Kubeconfig             string `mapstructure:"kubeconfig"`
	InCluster              bool   `mapstructure:"in_cluster"`
}

// ServerConfig holds the REST/webhook HTTP server's listen configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// LogConfigBoot holds logging bootstrap configuration (see internal/logging).
type LogConfigBoot struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AuthBootConfig configures the boundary's three-method auth chain.
type AuthBootConfig struct {
	Strict        bool   `mapstructure:"strict"`
	APIKey        string `mapstructure:"api_key"`
	APIKeyIdentity string `mapstructure:"api_key_identity"`
}

// RateLimitBootConfig configures the REST boundary's per-client limiter.
type RateLimitBootConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// TLSConfig holds the webhook server's serving certificate paths, required
// by Kubernetes for admission webhook endpoints.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig configures the optional Postgres-backed exemption/history
// stores (profile "standard").
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig configures the optional shared API-key cache tier.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoadConfig binds environment variables (and an optional config file) into
// a Config, applying defaults first so unset fields are never zero-valued
// in surprising ways.
func LoadConfig(configPath string) (*Config, error) {
	setBootDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindBootEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("boot config: read file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("boot config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("boot config: validate: %w", err)
	}
	return &cfg, nil
}

// bindBootEnv maps flat, bare environment variable names onto the nested
// mapstructure keys viper otherwise expects as STORE_NAMESPACE-style
// (underscored path), so we bind them explicitly.
func bindBootEnv() {
	_ = viper.BindEnv("store.namespace", "NAMESPACE")
	_ = viper.BindEnv("store.configmap_name", "CONFIGMAP_NAME")
	_ = viper.BindEnv("store.schedules_configmap_name", "SCHEDULES_CONFIGMAP_NAME")
	_ = viper.BindEnv("log.level", "LOG_LEVEL")
	_ = viper.BindEnv("log.format", "LOG_FORMAT")
	_ = viper.BindEnv("log.file", "AUDIT_LOG_FILE")
	_ = viper.BindEnv("auth.strict", "STRICT_AUTH")
	_ = viper.BindEnv("auth.api_key", "API_KEY")
	_ = viper.BindEnv("tls.cert_file", "TLS_CERT_FILE")
	_ = viper.BindEnv("tls.key_file", "TLS_KEY_FILE")
}

func setBootDefaults() {
	viper.SetDefault("profile", string(ProfileMemory))

	viper.SetDefault("store.namespace", "default")
	viper.SetDefault("store.configmap_name", "freezegate-policy")
	viper.SetDefault("store.schedules_configmap_name", "freezegate-schedules")
	viper.SetDefault("store.in_cluster", true)

	viper.SetDefault("server.port", 8443)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.graceful_shutdown_timeout", "15s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age_days", 28)

	viper.SetDefault("auth.strict", true)
	viper.SetDefault("auth.api_key_identity", "api-user")

	viper.SetDefault("rate_limit.requests_per_minute", 120)
	viper.SetDefault("rate_limit.burst", 30)

	viper.SetDefault("tls.enabled", true)

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.database", "freezegate.db")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.connect_timeout", "10s")

	viper.SetDefault("redis.ttl", "30s")
}

// Validate rejects boot configurations that cannot start the process.
func (c *Config) Validate() error {
	if c.Profile != ProfileMemory && c.Profile != ProfileLite && c.Profile != ProfileStandard {
		return fmt.Errorf("boot config: invalid profile %q (must be memory, lite, or standard)", c.Profile)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("boot config: invalid server port %d", c.Server.Port)
	}
	if c.Profile == ProfileStandard && c.Database.Host == "" {
		return fmt.Errorf("boot config: database.host required for the standard profile")
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("boot config: tls.cert_file and tls.key_file required when tls.enabled")
	}
	return nil
}

// DatabaseURL constructs the libpq-style connection string pgx expects.
func (c *Config) DatabaseURL() string {
	d := c.Database
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.Username, d.Password, d.Host, d.Port, d.Database, sslMode)
}
