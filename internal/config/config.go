package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config is read from the environment (and an optional .env file).
type Config struct {
	ProjectID     string `env:"FIREBASE_PROJECT_ID"`
	APIKey        string `env:"FIREBASE_API_KEY"`
	StorageBucket string `env:"FIREBASE_STORAGE_BUCKET"`

	FunctionsRegion string `env:"FUNCTIONS_REGION" envDefault:"us-central1"`

	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	SignedURLServiceAccountEmail string `env:"SIGNED_URL_SERVICE_ACCOUNT_EMAIL"`

	CredentialsFile    string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	ServiceAccountJSON string `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`

	AuthEmulatorHost      string `env:"FIREBASE_AUTH_EMULATOR_HOST"`
	FunctionsEmulatorHost string `env:"FUNCTIONS_EMULATOR_HOST"`
	StorageEmulatorHost   string `env:"FIREBASE_STORAGE_EMULATOR_HOST"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	HTTPRetryMax           int `env:"HTTP_RETRY_MAX" envDefault:"3"`
	UploadChunkSize        int `env:"UPLOAD_CHUNK_SIZE" envDefault:"8388608"`
	DownloadURLCacheSize   int `env:"DOWNLOAD_URL_CACHE_SIZE" envDefault:"1024"`
	TransactionMaxAttempts int `env:"TRANSACTION_MAX_ATTEMPTS" envDefault:"5"`
}

// uploads are sent in multiples of this many bytes
const chunkQuantum = 256 * 1024

var ErrInvalidConfig = errors.New("invalid config")

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: .env: %v", ErrInvalidConfig, err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.ProjectID == "" {
		cfg.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if cfg.StorageBucket == "" && cfg.ProjectID != "" {
		cfg.StorageBucket = cfg.ProjectID + ".appspot.com"
	}
	cfg.StorageBucket = strings.TrimPrefix(cfg.StorageBucket, "gs://")

	allowed := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed = append(allowed, o)
		}
	}
	cfg.AllowedOrigins = allowed

	if cfg.UploadChunkSize < 0 || cfg.UploadChunkSize%chunkQuantum != 0 {
		return Config{}, fmt.Errorf("%w: UPLOAD_CHUNK_SIZE must be a non-negative multiple of %d", ErrInvalidConfig, chunkQuantum)
	}
	if cfg.HTTPRetryMax < 0 {
		return Config{}, fmt.Errorf("%w: HTTP_RETRY_MAX must not be negative", ErrInvalidConfig)
	}
	if cfg.TransactionMaxAttempts < 1 {
		return Config{}, fmt.Errorf("%w: TRANSACTION_MAX_ATTEMPTS must be at least 1", ErrInvalidConfig)
	}

	return cfg, nil
}
