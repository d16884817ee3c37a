package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Port               string        `mapstructure:"port"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestBodySize int64         `mapstructure:"max_request_body_size"`
}

type GRPCConfig struct {
	HealthPort    string        `mapstructure:"health_port"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite or postgres
	Path          string `mapstructure:"path"`   // sqlite only
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`

	KeyPrefix  string        `mapstructure:"key_prefix"`
	CartTTL    time.Duration `mapstructure:"cart_ttl"`
	CartJitter time.Duration `mapstructure:"cart_ttl_jitter"`

	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	PruneEvery   time.Duration `mapstructure:"prune_every"`
	Retention    time.Duration `mapstructure:"retention"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	SessionCookieName string        `mapstructure:"session_cookie_name"`
	SessionCookieTTL  time.Duration `mapstructure:"session_cookie_ttl"`
	SecureCookies     bool          `mapstructure:"secure_cookies"`
}

type CheckoutConfig struct {
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	DeliveryFee string        `mapstructure:"delivery_fee"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_request_body_size", int64(1<<20))

	v.SetDefault("grpc.health_port", "")
	v.SetDefault("grpc.check_interval", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "restaurant.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "restaurant")
	v.SetDefault("database.migrations_dir", "./internal/repository/migrations")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "cart")
	v.SetDefault("redis.cart_ttl", 15*time.Minute)
	v.SetDefault("redis.cart_ttl_jitter", 5*time.Minute)
	v.SetDefault("redis.breaker_failures", 5)
	v.SetDefault("redis.breaker_timeout", 30*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "restaurant-orders")
	v.SetDefault("kafka.poll_interval", time.Second)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.prune_every", time.Hour)
	v.SetDefault("kafka.retention", 7*24*time.Hour)

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "restaurant")
	v.SetDefault("mongodb.collection", "order_audit")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_cookie_name", "session_id")
	v.SetDefault("auth.session_cookie_ttl", 14*24*time.Hour)
	v.SetDefault("auth.secure_cookies", false)

	v.SetDefault("checkout.session_ttl", time.Hour)
	v.SetDefault("checkout.delivery_fee", "2.99")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
}

// Load reads configuration from an optional YAML file and RESTAURANT_* environment
// variables, in that order of precedence (env wins). A .env file in the working
// directory is loaded first if present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RESTAURANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Checkout.SessionTTL <= 0 {
		return errors.New("checkout.session_ttl must be positive")
	}
	if _, err := c.Checkout.Fee(); err != nil {
		return err
	}
	return nil
}

// Fee parses the configured flat delivery surcharge.
func (c CheckoutConfig) Fee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.DeliveryFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid checkout.delivery_fee %q: %w", c.DeliveryFee, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("checkout.delivery_fee must not be negative")
	}
	return fee, nil
}

// MigrationsPath is the migrations directory for the configured driver.
func (c DatabaseConfig) MigrationsPath() string {
	return strings.TrimRight(c.MigrationsDir, "/") + "/" + c.Driver
}
