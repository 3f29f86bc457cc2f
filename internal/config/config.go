package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env     string
		Name    string
		Version string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	GRPC struct {
		Addr string
	} `mapstructure:"grpc"`

	Database struct {
		Driver          string
		DSN             string
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
		AutoMigrate     bool          `mapstructure:"auto_migrate"`
	} `mapstructure:"database"`

	Redis struct {
		Addr           string
		PoolSize       int           `mapstructure:"pool_size"`
		IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Tracing struct {
		Endpoint    string
		SampleRatio float64 `mapstructure:"sample_ratio"`
	} `mapstructure:"tracing"`

	Lifecycle struct {
		StrictValidation bool `mapstructure:"strict_validation"`
		MaxRetries       int  `mapstructure:"max_retries"`
	} `mapstructure:"lifecycle"`

	Stats struct {
		WindowDays int `mapstructure:"window_days"`
	} `mapstructure:"stats"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.name", "scrap-lifecycle")
	v.SetDefault("app.version", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "root:root@tcp(localhost:3306)/scrap_lifecycle")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("lifecycle.strict_validation", false)
	v.SetDefault("lifecycle.max_retries", 3)
	v.SetDefault("stats.window_days", 7)
}

// Load reads the YAML file at path, if any, then applies APP_* environment
// overrides (APP_DATABASE_DSN overrides database.dsn).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
