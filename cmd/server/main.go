package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-dm/internal/api"
	"github.com/npezzotti/go-dm/internal/auth"
	"github.com/npezzotti/go-dm/internal/chat"
	"github.com/npezzotti/go-dm/internal/config"
	"github.com/npezzotti/go-dm/internal/database"
	"github.com/npezzotti/go-dm/internal/server"
	"github.com/npezzotti/go-dm/internal/stats"
	"github.com/npezzotti/go-dm/internal/storage"
)

const (
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	defaultDSN        = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

func main() {
	logger := log.New(os.Stderr, "[go-dm] ", log.LstdFlags)

	if err := config.LoadEnvFile(".env"); err != nil {
		logger.Fatal("env:", err)
	}

	var (
		p              config.Params
		allowedOrigins stringSliceFlag
	)
	if v := config.EnvString("DM_ALLOWED_ORIGINS", ""); v != "" {
		_ = allowedOrigins.Set(v)
	}

	flag.StringVar(&p.ServerAddr, "addr", config.EnvString("DM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&p.DatabaseDSN, "dsn", config.EnvString("DM_DSN", defaultDSN), "database connection string")
	flag.StringVar(&p.SigningKey, "signing-key", config.EnvString("DM_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.StringVar(&p.TokenAlgorithm, "token-algorithm", config.EnvString("DM_TOKEN_ALGORITHM", "HS256"), "access token signing algorithm")
	flag.DurationVar(&p.AccessTTL, "access-ttl", config.EnvDuration("DM_ACCESS_TTL", 30*time.Minute), "access token lifetime")
	flag.DurationVar(&p.RefreshTTL, "refresh-ttl", config.EnvDuration("DM_REFRESH_TTL", 7*24*time.Hour), "refresh token lifetime")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.BoolVar(&p.SecureCookies, "secure-cookies", config.EnvBool("DM_SECURE_COOKIES", false), "mark the refresh cookie Secure")
	flag.IntVar(&p.HashWorkers, "hash-workers", config.EnvInt("DM_HASH_WORKERS", 4), "concurrent password hashes")
	flag.IntVar(&p.MaxUploadMB, "max-upload-mb", config.EnvInt("DM_MAX_UPLOAD_MB", 20), "maximum size of an uploaded file in MB")
	flag.BoolVar(&p.Migrate, "migrate", config.EnvBool("DM_MIGRATE", true), "apply database migrations on startup")
	flag.StringVar(&p.S3.Endpoint, "s3-endpoint", config.EnvString("DM_S3_ENDPOINT", ""), "object storage endpoint")
	flag.StringVar(&p.S3.Region, "s3-region", config.EnvString("DM_S3_REGION", ""), "object storage region")
	flag.StringVar(&p.S3.Bucket, "s3-bucket", config.EnvString("DM_S3_BUCKET", ""), "object storage bucket")
	flag.StringVar(&p.S3.AccessKey, "s3-access-key", config.EnvString("DM_S3_ACCESS_KEY", ""), "object storage access key")
	flag.StringVar(&p.S3.SecretKey, "s3-secret-key", config.EnvString("DM_S3_SECRET_KEY", ""), "object storage secret key")
	flag.StringVar(&p.S3.PublicURL, "s3-public-url", config.EnvString("DM_S3_PUBLIC_URL", ""), "public base URL of the bucket")
	flag.Parse()

	p.AllowedOrigins = allowedOrigins

	cfg, err := config.NewConfig(p)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgDMRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if cfg.Migrate {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	codec, err := auth.NewTokenCodec(cfg.SigningKey, cfg.TokenAlgorithm)
	if err != nil {
		logger.Fatal("token codec:", err)
	}
	authority := auth.NewSessionAuthority(codec, dbConn, cfg.AccessTTL, cfg.RefreshTTL)
	hasher := auth.NewPasswordHasher(cfg.HashWorkers, 0)

	var uploads api.Uploader
	if cfg.S3.Enabled() {
		store, err := storage.NewS3Store(context.Background(), cfg.S3, cfg.MaxUploadBytes)
		if err != nil {
			logger.Fatal("s3:", err)
		}
		uploads = store
	} else {
		logger.Println("object storage not configured, uploads disabled")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer := server.NewChatServer(
		logger,
		server.NewRegistry(logger, statsUpdater),
		authority,
		chat.NewConversationService(dbConn),
		chat.NewMessagePoster(dbConn),
		statsUpdater,
		cfg.AllowedOrigins,
	)

	srv := api.NewDMApp(mux, logger, chatServer, dbConn, authority, hasher, statsUpdater, uploads, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Println("server:", err)
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
