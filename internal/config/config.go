package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Params holds the raw values collected from flags and the environment.
type Params struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     string
	TokenAlgorithm string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	AllowedOrigins []string
	SecureCookies  bool
	HashWorkers    int
	MaxUploadMB    int
	Migrate        bool
	S3             S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// Enabled reports whether object storage has been configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

func (c S3Config) complete() bool {
	return c.Endpoint != "" && c.Region != "" && c.Bucket != "" &&
		c.AccessKey != "" && c.SecretKey != "" && c.PublicURL != ""
}

func (c S3Config) empty() bool {
	return c == S3Config{}
}

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	TokenAlgorithm string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	AllowedOrigins []string
	SecureCookies  bool
	HashWorkers    int
	MaxUploadBytes int64
	Migrate        bool
	S3             S3Config
}

var supportedAlgorithms = []string{"HS256", "HS384", "HS512"}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if p.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if p.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(p.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	alg := strings.ToUpper(p.TokenAlgorithm)
	if alg == "" {
		alg = "HS256"
	}
	if !slices.Contains(supportedAlgorithms, alg) {
		return nil, fmt.Errorf("unsupported token algorithm %q", p.TokenAlgorithm)
	}

	if p.AccessTTL <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	if p.RefreshTTL <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	if p.HashWorkers < 1 {
		return nil, fmt.Errorf("hash workers must be at least 1")
	}
	if p.MaxUploadMB < 1 {
		return nil, fmt.Errorf("max upload size must be at least 1 MB")
	}

	if !p.S3.empty() && !p.S3.complete() {
		return nil, fmt.Errorf("s3 configuration is incomplete")
	}

	return &Config{
		DatabaseDSN:    p.DatabaseDSN,
		ServerAddr:     p.ServerAddr,
		SigningKey:     signingKey,
		TokenAlgorithm: alg,
		AccessTTL:      p.AccessTTL,
		RefreshTTL:     p.RefreshTTL,
		AllowedOrigins: p.AllowedOrigins,
		SecureCookies:  p.SecureCookies,
		HashWorkers:    p.HashWorkers,
		MaxUploadBytes: int64(p.MaxUploadMB) << 20,
		Migrate:        p.Migrate,
		S3:             p.S3,
	}, nil
}

// LoadEnvFile loads variables from path into the process environment.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

func EnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func EnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func EnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func EnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
