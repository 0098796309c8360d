package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/trackie/internal/inference"
	"go.uber.org/fx"
)

// ProvideInferenceClient returns nil when no sidecar address is configured;
// the camera then forwards frames without detections.
func ProvideInferenceClient(lc fx.Lifecycle, cfg *Config, logger *slog.Logger) (*inference.Client, error) {
	if cfg.Vision.InferenceAddr == "" {
		logger.Warn("inference sidecar not configured, detection disabled")
		return nil, nil
	}

	client, err := inference.New(inference.Config{
		Address:             cfg.Vision.InferenceAddr,
		Token:               cfg.Vision.InferenceToken,
		Timeout:             cfg.Vision.InferenceTimeout,
		ConfidenceThreshold: cfg.Vision.ConfidenceThreshold,
	}, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.LoadClasses(ctx); err != nil {
				logger.Warn("load detector classes", "error", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

var InferenceModule = fx.Options(
	fx.Provide(ProvideInferenceClient),
)
