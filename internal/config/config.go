package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sync     SyncConfig     `mapstructure:"sync"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type AppConfig struct {
	Name          string `mapstructure:"name"`
	LogLevel      string `mapstructure:"log_level"`
	NodeID        int64  `mapstructure:"node_id"`
	LocalUserID   string `mapstructure:"local_user_id"`
	LocalUserName string `mapstructure:"local_user_name"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EventBuffer    int           `mapstructure:"event_buffer"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// SyncConfig 同步引擎参数
type SyncConfig struct {
	TypingTimeout       time.Duration `mapstructure:"typing_timeout"`
	TrashWindow         time.Duration `mapstructure:"trash_window"`
	ExpiringSoonDays    int           `mapstructure:"expiring_soon_days"`
	ExpiryCron          string        `mapstructure:"expiry_cron"`
	PendingTTL          time.Duration `mapstructure:"pending_ttl"`
	IntakeBuffer        int           `mapstructure:"intake_buffer"`
	PageSize            int           `mapstructure:"page_size"`
	MaxNotifications    int           `mapstructure:"max_notifications"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	SendAttempts        int           `mapstructure:"send_attempts"`
	SendRetryDelay      time.Duration `mapstructure:"send_retry_delay"`
	TimerWorkers        int           `mapstructure:"timer_workers"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EnvPrefix 环境变量前缀，例如 IMSYNC_NATS_URL
const EnvPrefix = "IMSYNC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "im-sync")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.node_id", 1)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.request_timeout", 5*time.Second)
	v.SetDefault("nats.event_buffer", 1024)

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "im")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("sync.typing_timeout", 3*time.Second)
	v.SetDefault("sync.trash_window", 30*24*time.Hour)
	v.SetDefault("sync.expiring_soon_days", 7)
	v.SetDefault("sync.expiry_cron", "*/5 * * * *")
	v.SetDefault("sync.pending_ttl", 5*time.Second)
	v.SetDefault("sync.intake_buffer", 1024)
	v.SetDefault("sync.page_size", 50)
	v.SetDefault("sync.max_notifications", 200)
	v.SetDefault("sync.maintenance_interval", time.Second)
	v.SetDefault("sync.send_attempts", 3)
	v.SetDefault("sync.send_retry_delay", 500*time.Millisecond)
	v.SetDefault("sync.timer_workers", 4)

	v.SetDefault("http.addr", ":8081")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
}

// Load 从指定路径加载配置，环境变量覆盖文件中的值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.App.LocalUserID == "" {
		return fmt.Errorf("app.local_user_id is required")
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level: unknown level %q", c.App.LogLevel)
	}

	durations := map[string]time.Duration{
		"sync.typing_timeout":       c.Sync.TypingTimeout,
		"sync.trash_window":         c.Sync.TrashWindow,
		"sync.pending_ttl":          c.Sync.PendingTTL,
		"sync.maintenance_interval": c.Sync.MaintenanceInterval,
		"sync.send_retry_delay":     c.Sync.SendRetryDelay,
		"nats.request_timeout":      c.NATS.RequestTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	counts := map[string]int{
		"sync.expiring_soon_days": c.Sync.ExpiringSoonDays,
		"sync.intake_buffer":      c.Sync.IntakeBuffer,
		"sync.page_size":          c.Sync.PageSize,
		"sync.max_notifications":  c.Sync.MaxNotifications,
		"sync.send_attempts":      c.Sync.SendAttempts,
	}
	for key, n := range counts {
		if n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, n)
		}
	}

	if !gronx.IsValid(c.Sync.ExpiryCron) {
		return fmt.Errorf("sync.expiry_cron: invalid cron expression %q", c.Sync.ExpiryCron)
	}
	return nil
}

// DSN PostgreSQL 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

// Addr Redis 地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
