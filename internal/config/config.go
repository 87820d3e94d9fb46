package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Database struct {
	WriteDSN          string        `mapstructure:"write_dsn"`
	ReadDSN           string        `mapstructure:"read_dsn"`
	Host              string        `mapstructure:"host"`
	ReadHost          string        `mapstructure:"read_host"`
	Port              int           `mapstructure:"port"`
	Name              string        `mapstructure:"name"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	SSLMode           string        `mapstructure:"sslmode"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	SlowThreshold     time.Duration `mapstructure:"slow_threshold"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Watcher  Watcher  `mapstructure:"watcher"`
	Dispatch Dispatch `mapstructure:"dispatch"`
	Lock     Lock     `mapstructure:"lock"`
	Redis    Redis    `mapstructure:"redis"`
	NATS     NATS     `mapstructure:"nats"`
	Env      string   `mapstructure:"environment"`
}

type Server struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const MaxBatchSize = 500

type Watcher struct {
	Name          string   `mapstructure:"name"`
	AgentKey      string   `mapstructure:"agent_key"`
	DefaultTenant string   `mapstructure:"default_tenant"`
	Tenants       []string `mapstructure:"tenants"`
	BatchSize     int      `mapstructure:"batch_size"`
	SourceTable   string   `mapstructure:"source_table"`
	IDColumn      string   `mapstructure:"id_column"`
	EventType     string   `mapstructure:"event_type"`
}

type Dispatch struct {
	URLs       []string      `mapstructure:"urls"`
	AuthHeader string        `mapstructure:"auth_header"`
	AuthValue  string        `mapstructure:"auth_value"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	RateBurst  int           `mapstructure:"rate_burst"`
	Breaker    Breaker       `mapstructure:"breaker"`
}

type Breaker struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

type Lock struct {
	Driver    string        `mapstructure:"driver"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Expiry    time.Duration `mapstructure:"expiry"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATS struct {
	URL             string        `mapstructure:"url"`
	Stream          string        `mapstructure:"stream"`
	Subject         string        `mapstructure:"subject"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

func Load(cfgFile string) (Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.hoamx-watcher-agent")
		v.AddConfigPath("/etc/hoamx-watcher-agent")
	}

	v.SetEnvPrefix("HOAMX_WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASS")
	// flat names used by existing deployments
	_ = v.BindEnv("database.write_dsn", "HOAMX_WATCHER_DATABASE_WRITE_DSN", "DATABASE_URL")
	_ = v.BindEnv("watcher.agent_key", "HOAMX_WATCHER_WATCHER_AGENT_KEY", "WATCHER_AGENT_KEY")
	_ = v.BindEnv("watcher.default_tenant", "HOAMX_WATCHER_WATCHER_DEFAULT_TENANT", "TENANT_DEFAULT")
	_ = v.BindEnv("watcher.batch_size", "HOAMX_WATCHER_WATCHER_BATCH_SIZE", "BATCH_SIZE")
	_ = v.BindEnv("watcher.name", "HOAMX_WATCHER_WATCHER_NAME", "WATCHER_NAME")
	_ = v.BindEnv("dispatch.urls", "HOAMX_WATCHER_DISPATCH_URLS", "DOWNSTREAM_URLS")
	_ = v.BindEnv("dispatch.auth_header", "HOAMX_WATCHER_DISPATCH_AUTH_HEADER", "DOWNSTREAM_AUTH_HEADER")
	_ = v.BindEnv("dispatch.auth_value", "HOAMX_WATCHER_DISPATCH_AUTH_VALUE", "DOWNSTREAM_AUTH_VALUE")
	_ = v.BindEnv("log.level", "HOAMX_WATCHER_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("server.poll_timeout", "HOAMX_WATCHER_SERVER_POLL_TIMEOUT", "POLL_TIMEOUT_SECONDS")

	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.connect_timeout", "5s")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.max_conn_idle_time", "5m")
	v.SetDefault("database.health_check_period", "1m")
	v.SetDefault("database.slow_threshold", "200ms")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.poll_timeout", "25s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("watcher.name", "watcher")
	v.SetDefault("watcher.default_tenant", "hoamx_com")
	v.SetDefault("watcher.tenants", []string{})
	v.SetDefault("watcher.batch_size", 50)
	v.SetDefault("watcher.source_table", "contact_messages")
	v.SetDefault("watcher.id_column", "id")
	v.SetDefault("watcher.event_type", "contact.created")
	v.SetDefault("watcher.agent_key", "")
	v.SetDefault("dispatch.urls", []string{})
	v.SetDefault("dispatch.auth_header", "x-agent-key")
	v.SetDefault("dispatch.auth_value", "")
	v.SetDefault("dispatch.timeout", "20s")
	v.SetDefault("dispatch.rate_limit", 0)
	v.SetDefault("dispatch.rate_burst", 1)
	v.SetDefault("dispatch.breaker.enabled", false)
	v.SetDefault("dispatch.breaker.consecutive_failures", 5)
	v.SetDefault("dispatch.breaker.open_timeout", "30s")
	v.SetDefault("lock.driver", "postgres")
	v.SetDefault("lock.key_prefix", "watcher")
	v.SetDefault("lock.expiry", "5m")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream", "watcher")
	v.SetDefault("nats.subject", "watcher.events")
	v.SetDefault("nats.duplicate_window", "2m")
	v.SetDefault("environment", "dev")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return Config{}, err
	}

	cfg = applyDSNDefaults(cfg)
	cfg = applyWatcherDefaults(cfg)
	return cfg, nil
}

// Validate reports the settings a serving process cannot run without.
func (c Config) Validate() error {
	var missing []string
	if c.Database.WriteDSN == "" {
		missing = append(missing, "database.write_dsn")
	}
	if c.Watcher.AgentKey == "" {
		missing = append(missing, "watcher.agent_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	if c.Watcher.BatchSize < 1 || c.Watcher.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: watcher.batch_size must be between 1 and %d", ErrIncomplete, MaxBatchSize)
	}
	return c.ValidateLockPool()
}

// ValidateLockPool rejects a database pool the postgres locker would starve:
// the advisory lock pins one connection for the whole cycle and each step's
// transaction needs another.
func (c Config) ValidateLockPool() error {
	postgresLock := c.Lock.Driver == "" || c.Lock.Driver == "postgres"
	if postgresLock && c.Database.MaxConns > 0 && c.Database.MaxConns < 2 {
		return fmt.Errorf("%w: database.max_conns must be at least 2 with lock.driver=postgres", ErrIncomplete)
	}
	return nil
}

var ErrIncomplete = errors.New("config incomplete")

// secondsHook accepts bare integers for durations, as POLL_TIMEOUT_SECONDS does.
func secondsHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if n, err := strconv.Atoi(raw); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return raw, nil
	}
}

func applyWatcherDefaults(cfg Config) Config {
	cfg.Dispatch.URLs = cleanList(cfg.Dispatch.URLs)
	tenants := cleanList(cfg.Watcher.Tenants)
	if cfg.Watcher.DefaultTenant != "" && !contains(tenants, cfg.Watcher.DefaultTenant) {
		tenants = append(tenants, cfg.Watcher.DefaultTenant)
	}
	cfg.Watcher.Tenants = tenants
	return cfg
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" && !contains(out, part) {
				out = append(out, part)
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func applyDSNDefaults(cfg Config) Config {
	if cfg.Database.WriteDSN == "" && cfg.Database.Host != "" && cfg.Database.Name != "" {
		cfg.Database.WriteDSN = buildDSN(cfg.Database.Host, cfg.Database.Port, cfg.Database.Name, cfg.Database.User, cfg.Database.Password, cfg.Database.SSLMode)
	}
	if cfg.Database.ReadDSN == "" {
		readHost := cfg.Database.ReadHost
		if readHost == "" {
			readHost = cfg.Database.Host
		}
		if readHost != "" && cfg.Database.Name != "" {
			cfg.Database.ReadDSN = buildDSN(readHost, cfg.Database.Port, cfg.Database.Name, cfg.Database.User, cfg.Database.Password, cfg.Database.SSLMode)
		}
	}
	return cfg
}

func buildDSN(host string, port int, name, user, password, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	creds := ""
	if user != "" {
		creds = user
		if password != "" {
			creds += ":" + password
		}
		creds += "@"
	}
	return fmt.Sprintf("postgres://%s%s:%d/%s?sslmode=%s", creds, host, port, name, sslmode)
}
