package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/trackie/internal/health"
	"github.com/eleven-am/trackie/internal/inference"
	"github.com/eleven-am/trackie/internal/preview"
	"github.com/eleven-am/trackie/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gorm.io/gorm"
)

// Version is set at build time.
var Version = "dev"

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	AllowHeaders: []string{"Accept", "Content-Type"},
	MaxAge:       86400,
}

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

type routeParams struct {
	fx.In

	Echo       *echo.Echo
	SessionID  SessionID
	Supervisor *session.Supervisor
	Preview    *preview.Server
	DB         *gorm.DB
	Redis      *redis.Client
	Qdrant     *qdrant.Client
	Inference  *inference.Client
}

func RegisterRoutes(p routeParams) {
	deps := health.Deps{
		DB:      p.DB,
		Redis:   p.Redis,
		Qdrant:  p.Qdrant,
		Session: sessionProbe{id: p.SessionID, sup: p.Supervisor, preview: p.Preview},
		Version: Version,
	}
	if p.Inference != nil {
		deps.Inference = p.Inference
	}
	health.NewHandler(deps).RegisterRoutes(p.Echo)
	if p.Preview != nil {
		p.Preview.RegisterRoutes(p.Echo)
	}
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("preview server listening", "addr", cfg.PreviewAddr)
				if err := e.Start(cfg.PreviewAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("preview server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer),
	fx.Invoke(RegisterRoutes, StartServer),
)

// stopTimeout bounds the drain of the session and the servers.
const stopTimeout = 15 * time.Second

// Options assembles the application graph for cfg.
func Options(cfg *Config) fx.Option {
	opts := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(ProvideLogger),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.StopTimeout(stopTimeout),
		InfrastructureModule,
		StoresModule,
		InferenceModule,
		AssistantModule,
	}
	if cfg.PreviewEnabled() {
		opts = append(opts, ServerModule)
	}
	return fx.Options(opts...)
}

func New(cfg *Config) *fx.App {
	return fx.New(Options(cfg))
}

// Run starts the assistant and blocks until the session ends or the process
// receives a termination signal.
func Run(cfg *Config) error {
	app := New(cfg)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	sig := <-app.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("session ended with exit code %d", sig.ExitCode)
	}
	return nil
}
