package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// MinKeyLength is the shortest HMAC-SHA256 signing key accepted in prod.
const MinKeyLength = 32

type Config struct {
	Env             string        `yaml:"env" env:"ENV" env-default:"local"`
	Storage         StorageConfig `yaml:"storage"`
	JWT             JWTSettings   `yaml:"jwt_settings"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env-default:"1h"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	PasswordCost    int           `yaml:"password_cost" env-default:"10"`
	CoalesceRefresh bool          `yaml:"coalesce_refresh" env:"COALESCE_REFRESH"`
	GRPC            GRPCConfig    `yaml:"grpc"`
	HTTP            HTTPConfig    `yaml:"http"`
}

type StorageConfig struct {
	Driver      string      `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	Path        string      `yaml:"path" env:"STORAGE_PATH"`
	PostgresDSN string      `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	Mongo       MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"shopauth"`
}

// JWTSettings holds the symmetric signing key and the issuer/audience pair
// stamped into and checked on every access token.
type JWTSettings struct {
	Key      string `yaml:"key" env:"JWT_KEY"`
	Issuer   string `yaml:"issuer" env:"JWT_ISSUER"`
	Audience string `yaml:"audience" env:"JWT_AUDIENCE"`
}

type GRPCConfig struct {
	Port    int           `yaml:"port" env:"GRPC_PORT" env-default:"44044"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
}

type HTTPConfig struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// LoadDotEnv exports the variables from the given .env files (".env" when
// none are given). Missing files are skipped; unreadable or malformed ones
// are an error.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}

	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}

	return nil
}

// MustLoad reads the config from the path given by --config or CONFIG_PATH
// and panics if it cannot.
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load reads and validates the config file at path. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var (
	ErrMissingKey     = errors.New("jwt_settings.key is required")
	ErrShortKey       = fmt.Errorf("jwt_settings.key must be at least %d bytes", MinKeyLength)
	ErrUnknownDriver  = errors.New("unknown storage driver")
	ErrUnknownEnv     = errors.New("unknown environment")
	ErrNonPositiveTTL = errors.New("token ttl must be positive")
)

func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEnv, c.Env)
	}

	if strings.TrimSpace(c.JWT.Key) == "" {
		return ErrMissingKey
	}
	if c.Env == EnvProd && len(c.JWT.Key) < MinKeyLength {
		return ErrShortKey
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrNonPositiveTTL
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for postgres")
		}
	case DriverMongo:
		if c.Storage.Mongo.URI == "" {
			return errors.New("storage.mongo.uri is required for mongo")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Storage.Driver)
	}

	return nil
}

// fetchConfigPath returns the config path from the --config flag, falling
// back to the CONFIG_PATH environment variable.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
