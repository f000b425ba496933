package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	HTTP     HTTP
	Postgres Postgres
	Redis    Redis
	RabbitMQ RabbitMQ
	PayPal   PayPal
	NOW      NOWPayments
	Omise    Omise
	NFT      NFT
	Telegram Telegram

	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`
	LockDriver  string `envconfig:"LOCK_DRIVER" default:"memory"`

	EncryptionKey   string        `envconfig:"DATA_ENCRYPTION_KEY" required:"true"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`
	FrontendURL     string        `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	APIURL          string        `envconfig:"API_URL" default:"http://localhost:8080"`
	OTLPEndpoint    string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type HTTP struct {
	Addr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	GinMode      string        `envconfig:"GIN_MODE" default:"release"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

type Postgres struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"5432"`
	User         string `envconfig:"DB_USER" default:"postgres"`
	Password     string `envconfig:"DB_PASSWORD"`
	Name         string `envconfig:"DB_NAME" default:"defi_booking"`
	SSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode)
}

type Redis struct {
	Addr    string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	DB      int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL time.Duration `envconfig:"REDIS_LOCK_TTL" default:"30s"`
}

type RabbitMQ struct {
	URL      string `envconfig:"RABBITMQ_URL"`
	Exchange string `envconfig:"RABBITMQ_EXCHANGE" default:"booking.events"`
}

type PayPal struct {
	ClientID      string `envconfig:"PAYPAL_CLIENT_ID"`
	ClientSecret  string `envconfig:"PAYPAL_CLIENT_SECRET"`
	Mode          string `envconfig:"PAYPAL_MODE" default:"sandbox"`
	WebhookID     string `envconfig:"PAYPAL_WEBHOOK_ID"`
	WebhookSecret string `envconfig:"PAYPAL_WEBHOOK_SECRET"`
}

// BaseURL resolves the REST endpoint for the configured mode.
func (p PayPal) BaseURL() string {
	if p.Mode == "live" {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

func (p PayPal) Enabled() bool { return p.ClientID != "" && p.ClientSecret != "" }

type NOWPayments struct {
	APIKey      string `envconfig:"NOWPAYMENTS_API_KEY"`
	IPNSecret   string `envconfig:"NOWPAYMENTS_IPN_SECRET"`
	BaseURL     string `envconfig:"NOWPAYMENTS_BASE_URL" default:"https://api.nowpayments.io/v1"`
	PayCurrency string `envconfig:"NOWPAYMENTS_PAY_CURRENCY" default:"pyusd"`
}

func (n NOWPayments) Enabled() bool { return n.APIKey != "" }

type Omise struct {
	PublicKey     string `envconfig:"OMISE_PUBLIC_KEY"`
	SecretKey     string `envconfig:"OMISE_SECRET_KEY"`
	WebhookSecret string `envconfig:"OMISE_WEBHOOK_SECRET"`
	SourceType    string `envconfig:"OMISE_SOURCE_TYPE" default:"promptpay"`
}

func (o Omise) Enabled() bool { return o.PublicKey != "" && o.SecretKey != "" }

type NFT struct {
	Enabled         bool   `envconfig:"NFT_ENABLED" default:"false"`
	Chain           string `envconfig:"NFT_CHAIN" default:"polygon-amoy"`
	ContractAddress string `envconfig:"NFT_CONTRACT_ADDRESS"`
	StorageURL      string `envconfig:"NFT_STORAGE_URL" default:"https://api.nft.storage"`
	StorageKey      string `envconfig:"NFT_STORAGE_KEY"`
	ImageURI        string `envconfig:"NFT_IMAGE_URI"`
}

type Telegram struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment take precedence over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.LockDriver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown LOCK_DRIVER %q", c.LockDriver)
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	return nil
}
