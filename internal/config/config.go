package config

import (
	"errors"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMongo  = "mongo"
	StorageSQLite = "sqlite"

	AssetsS3    = "s3"
	AssetsLocal = "local"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Cookie    CookieConfig    `yaml:"cookie"`
	CORS      CORSConfig      `yaml:"cors"`
	Assets    AssetsConfig    `yaml:"assets"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env-default:"10485760"`
}

type StorageConfig struct {
	Driver string      `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mongo"`
	Mongo  MongoConfig `yaml:"mongo"`
	SQLite string      `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"./storage/accounts.db"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGODB_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"MONGODB_DATABASE" env-default:"accounts"`
}

type TokensConfig struct {
	AccessSecret  string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"REFRESH_TOKEN_TTL" env-default:"240h"`
}

// CookieConfig controls the token cookies. Cookies are Secure unless
// Insecure is set, which is only meant for plain-http local development.
type CookieConfig struct {
	Insecure bool   `yaml:"insecure" env:"COOKIE_INSECURE"`
	SameSite string `yaml:"same_site" env:"COOKIE_SAMESITE" env-default:"lax"`
	Domain   string `yaml:"domain" env:"COOKIE_DOMAIN"`
}

type CORSConfig struct {
	Origin string `yaml:"origin" env:"CORS_ORIGIN"`
}

type AssetsConfig struct {
	Driver        string   `yaml:"driver" env:"ASSETS_DRIVER" env-default:"local"`
	PublicBaseURL string   `yaml:"public_base_url" env:"ASSETS_PUBLIC_BASE_URL"`
	LocalDir      string   `yaml:"local_dir" env:"ASSETS_LOCAL_DIR" env-default:"./public"`
	S3            S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
}

// RateLimitConfig limits register, login and refresh per client. Forwarding
// headers are only honored for peers listed in TrustedProxies.
type RateLimitConfig struct {
	Requests       int           `yaml:"requests" env:"RATELIMIT_REQUESTS" env-default:"5"`
	Window         time.Duration `yaml:"window" env:"RATELIMIT_WINDOW" env-default:"1m"`
	Burst          int           `yaml:"burst" env:"RATELIMIT_BURST" env-default:"5"`
	TrustedProxies []string      `yaml:"trusted_proxies" env:"RATELIMIT_TRUSTED_PROXIES" env-separator:","`
}

// MustLoad reads the config path from the -config flag or CONFIG_PATH and
// loads it. It panics on any error.
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return LoadConfig(path)
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	return &cfg
}

// Validate checks invariants cleanenv cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Tokens.AccessSecret == "" || c.Tokens.RefreshSecret == "" {
		errs = append(errs, errors.New("token secrets must be set"))
	} else if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}

	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttls must be positive"))
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit requests, window and burst must be positive"))
	}

	for _, p := range c.RateLimit.TrustedProxies {
		p = strings.TrimSpace(p)
		if _, err := netip.ParsePrefix(p); err != nil {
			if _, err := netip.ParseAddr(p); err != nil {
				errs = append(errs, fmt.Errorf("invalid trusted proxy %q", p))
			}
		}
	}

	switch c.Storage.Driver {
	case StorageMongo, StorageSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Assets.Driver {
	case AssetsLocal:
	case AssetsS3:
		if c.Assets.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 bucket must be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown assets driver %q", c.Assets.Driver))
	}

	return errors.Join(errs...)
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
