package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	httpapp "accounts/internal/app/http"
	"accounts/internal/assets"
	"accounts/internal/assets/local"
	"accounts/internal/assets/s3"
	"accounts/internal/config"
	"accounts/internal/domain/models"
	"accounts/internal/http/cookies"
	"accounts/internal/http/handlers/channels"
	"accounts/internal/http/handlers/users"
	"accounts/internal/http/middleware/ratelimit"
	"accounts/internal/http/router"
	"accounts/internal/services/auth"
	"accounts/internal/services/channel"
	"accounts/internal/services/profile"
	"accounts/internal/services/token"
	"accounts/internal/storage/mongodb"
	"accounts/internal/storage/sqlite"
)

// Storage is everything the services need from a credential store.
type Storage interface {
	auth.UserSaver
	auth.UserProvider
	token.RefreshTokenSaver
	profile.UserUpdater
	channel.UserProvider
	channel.SubscriptionStore

	UserProfile(ctx context.Context, userID string) (*models.User, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type App struct {
	HTTPSrv *httpapp.App
	storage Storage
}

func New(ctx context.Context, logger *slog.Logger, cfg *config.Config, version string) *App {
	storage, err := NewStorage(ctx, cfg.Storage)
	if err != nil {
		panic(err)
	}

	uploader, staticDir, err := newUploader(ctx, cfg.Assets)
	if err != nil {
		panic(err)
	}

	trusted, err := ratelimit.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		panic(err)
	}

	tokenService := token.New(logger, storage, storage, token.Config{
		AccessSecret:  cfg.Tokens.AccessSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	})
	authService := auth.New(logger, storage, storage, tokenService, uploader)
	profileService := profile.New(logger, storage, uploader)
	channelService := channel.New(logger, storage, storage)

	cookieCfg := cookies.Config{
		Secure:     !cfg.Cookie.Insecure,
		SameSite:   cookies.ParseSameSite(cfg.Cookie.SameSite),
		Domain:     cfg.Cookie.Domain,
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
	}

	handler := router.New(logger, router.Config{
		Version:    version,
		CORSOrigin: cfg.CORS.Origin,
		RateLimit: ratelimit.Config{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
			Burst:    cfg.RateLimit.Burst,
		},
		ClientKey: ratelimit.ClientIPBehind(trusted),
		StaticDir: staticDir,
	}, router.Deps{
		Users:    users.New(logger, authService, profileService, cookieCfg, cfg.HTTP.MaxUploadBytes),
		Channels: channels.New(logger, channelService),
		Verifier: tokenService,
		Profiles: storage,
		Store:    storage,
	})

	httpApp := httpapp.New(logger, handler, httpapp.Config{
		Address:      cfg.HTTP.Address,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	})

	return &App{
		HTTPSrv: httpApp,
		storage: storage,
	}
}

// Stop shuts the server down and then closes the store.
func (a *App) Stop(ctx context.Context) error {
	const op = "app.Stop"

	if err := a.HTTPSrv.Stop(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.storage.Close(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// NewStorage opens the configured store and brings its schema up to date.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	const op = "app.NewStorage"

	switch cfg.Driver {
	case config.StorageMongo:
		s, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite), 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}
}

// newUploader returns the uploader and, for local assets, the directory the
// router serves at /static/.
func newUploader(ctx context.Context, cfg config.AssetsConfig) (assets.Uploader, string, error) {
	const op = "app.newUploader"

	switch cfg.Driver {
	case config.AssetsS3:
		u, err := s3.New(ctx, s3.Config{
			Endpoint:      cfg.S3.Endpoint,
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
		return u, "", nil
	case config.AssetsLocal:
		u, err := local.New(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
		return u, u.Dir(), nil
	default:
		return nil, "", fmt.Errorf("%s: unknown assets driver %q", op, cfg.Driver)
	}
}
