package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Cart      CartConfig      `yaml:"cart"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logger    LoggerConfig    `yaml:"logger"`
	Fragments FragmentsConfig `yaml:"fragments"`
}

type HTTPConfig struct {
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	SecureCookies   bool          `yaml:"secure_cookies" env:"HTTP_SECURE_COOKIES" env-default:"false"`
}

type StorageConfig struct {
	// Backend is one of memory, redis, mongo.
	Backend string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type MongoConfig struct {
	URI        string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database   string `yaml:"database" env:"MONGO_DB_NAME" env-default:"tranex"`
	Collection string `yaml:"collection" env:"MONGO_COLLECTION" env-default:"storage"`
}

type CatalogConfig struct {
	// Backend is one of supabase, sqlite.
	Backend        string        `yaml:"backend" env:"CATALOG_BACKEND" env-default:"sqlite"`
	DBPath         string        `yaml:"db_path" env:"CATALOG_DB_PATH" env-default:"./catalog.db"`
	MigrationsPath string        `yaml:"migrations_path" env:"CATALOG_MIGRATIONS_PATH" env-default:"./internal/catalog/migrations"`
	Cache          bool          `yaml:"cache" env:"CATALOG_CACHE" env-default:"false"`
	CacheTTL       time.Duration `yaml:"cache_ttl" env:"CATALOG_CACHE_TTL" env-default:"5m"`
	PageSize       int           `yaml:"page_size" env:"CATALOG_PAGE_SIZE" env-default:"6"`
}

type SupabaseConfig struct {
	URL              string        `yaml:"url" env:"SUPABASE_URL"`
	AnonKey          string        `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	Timeout          time.Duration `yaml:"timeout" env:"SUPABASE_TIMEOUT" env-default:"10s"`
	PasswordResetURL string        `yaml:"password_reset_url" env:"SUPABASE_PASSWORD_RESET_URL"`
}

type CartConfig struct {
	StorageKey   string `yaml:"storage_key" env:"CART_STORAGE_KEY" env-default:"tranex-cart"`
	ShippingFlat string `yaml:"shipping_flat" env:"CART_SHIPPING_FLAT" env-default:"10"`

	// IdleTimeout is how long an unused cart stays loaded in memory.
	IdleTimeout   time.Duration `yaml:"idle_timeout" env:"CART_IDLE_TIMEOUT" env-default:"30m"`
	EvictInterval time.Duration `yaml:"evict_interval" env:"CART_EVICT_INTERVAL" env-default:"1m"`
}

// Shipping parses the flat shipping fee.
func (c CartConfig) Shipping() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.ShippingFlat)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid shipping fee %q: %w", c.ShippingFlat, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("shipping fee must not be negative, got %s", d)
	}
	return d, nil
}

type KafkaConfig struct {
	Brokers       string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic         string `yaml:"topic" env:"KAFKA_CART_TOPIC" env-default:"cart-events"`
	CheckoutTopic string `yaml:"checkout_topic" env:"KAFKA_CHECKOUT_TOPIC" env-default:"checkout-completed"`
	GroupID       string `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"tranex-storefront"`
	Buffer        int    `yaml:"buffer" env:"KAFKA_BUFFER" env-default:"1024"`
}

// BrokerList splits the comma separated broker list; empty disables publishing.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding   string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
	TimeFormat string `yaml:"time_format" env:"LOG_TIME_FORMAT"`
}

type FragmentsConfig struct {
	// Dir overrides the embedded fragments when set.
	Dir string `yaml:"dir" env:"FRAGMENTS_DIR"`
}

// Load reads an optional .env file, then the YAML file at path (if any), then
// environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		err := cleanenv.ReadConfig(path, &cfg)
		if err == nil {
			return &cfg, cfg.validate()
		}
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Catalog.Backend {
	case "sqlite":
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return errors.New("supabase catalog requires SUPABASE_URL and SUPABASE_ANON_KEY")
		}
	default:
		return fmt.Errorf("unknown catalog backend %q", c.Catalog.Backend)
	}
	if _, err := c.Cart.Shipping(); err != nil {
		return err
	}
	return nil
}
