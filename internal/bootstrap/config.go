package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ModeCamera = "camera"
	ModeScreen = "screen"
	ModeNone   = "none"
)

type Config struct {
	UserName    string `mapstructure:"user_name"`
	Mode        string `mapstructure:"mode"`
	Preview     bool   `mapstructure:"preview"`
	PreviewAddr string `mapstructure:"preview_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Model    ModelConfig    `mapstructure:"model"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Video    VideoConfig    `mapstructure:"video"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Faces    FacesConfig    `mapstructure:"faces"`
	Queues   QueueConfig    `mapstructure:"queues"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
}

type ModelConfig struct {
	Provider        string        `mapstructure:"provider"`
	APIKey          string        `mapstructure:"api_key"`
	Name            string        `mapstructure:"name"`
	Temperature     float32       `mapstructure:"temperature"`
	Voice           string        `mapstructure:"voice"`
	Language        string        `mapstructure:"language"`
	MediaResolution string        `mapstructure:"media_resolution"`
	PromptPath      string        `mapstructure:"prompt_path"`
	ToolsPath       string        `mapstructure:"tools_path"`
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
}

type AudioConfig struct {
	InputDevice  string `mapstructure:"input_device"`
	OutputDevice string `mapstructure:"output_device"`
	SendRate     int    `mapstructure:"send_rate"`
	ReceiveRate  int    `mapstructure:"receive_rate"`
	PlaybackRate int    `mapstructure:"playback_rate"`
	ChunkSize    int    `mapstructure:"chunk_size"`
}

type VideoConfig struct {
	CameraDevice    string  `mapstructure:"camera_device"`
	ScreenDevice    string  `mapstructure:"screen_device"`
	FPS             float64 `mapstructure:"fps"`
	JPEGQuality     int     `mapstructure:"jpeg_quality"`
	MaxDimension    int     `mapstructure:"max_dimension"`
	MaxReadFailures int     `mapstructure:"max_read_failures"`
}

type VisionConfig struct {
	InferenceAddr       string        `mapstructure:"inference_addr"`
	InferenceToken      string        `mapstructure:"inference_token"`
	InferenceTimeout    time.Duration `mapstructure:"inference_timeout"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	WatchList           []string      `mapstructure:"watch_list"`
	AlertCooldown       time.Duration `mapstructure:"alert_cooldown"`
	HistoryTTL          time.Duration `mapstructure:"history_ttl"`
	StepSampler         string        `mapstructure:"step_sampler"`
}

type FacesConfig struct {
	Collection string  `mapstructure:"collection"`
	Threshold  float32 `mapstructure:"threshold"`
}

type QueueConfig struct {
	Inbound  int `mapstructure:"inbound"`
	Outbound int `mapstructure:"outbound"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user_name", "User")
	v.SetDefault("mode", ModeCamera)
	v.SetDefault("preview", false)
	v.SetDefault("preview_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.name", "")
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.voice", "")
	v.SetDefault("model.language", "")
	v.SetDefault("model.media_resolution", "medium")
	v.SetDefault("model.prompt_path", "")
	v.SetDefault("model.tools_path", "")
	v.SetDefault("model.tool_timeout", 30*time.Second)

	v.SetDefault("audio.input_device", "")
	v.SetDefault("audio.output_device", "")
	v.SetDefault("audio.send_rate", 16000)
	v.SetDefault("audio.receive_rate", 24000)
	v.SetDefault("audio.playback_rate", 24000)
	v.SetDefault("audio.chunk_size", 1024)

	v.SetDefault("video.camera_device", "/dev/video0")
	v.SetDefault("video.screen_device", ":0.0")
	v.SetDefault("video.fps", 1.0)
	v.SetDefault("video.jpeg_quality", 50)
	v.SetDefault("video.max_dimension", 1024)
	v.SetDefault("video.max_read_failures", 5)

	v.SetDefault("vision.inference_addr", "")
	v.SetDefault("vision.inference_token", "")
	v.SetDefault("vision.inference_timeout", 5*time.Second)
	v.SetDefault("vision.confidence_threshold", 0.45)
	v.SetDefault("vision.watch_list", []string{"knife", "scissors", "car", "motorcycle", "bicycle", "bus", "truck"})
	v.SetDefault("vision.alert_cooldown", 10*time.Second)
	v.SetDefault("vision.history_ttl", 10*time.Minute)
	v.SetDefault("vision.step_sampler", "midpoint")

	v.SetDefault("faces.collection", "known_faces")
	v.SetDefault("faces.threshold", 0.6)

	v.SetDefault("queues.inbound", 150)
	v.SetDefault("queues.outbound", 64)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "trackie.db")
	v.SetDefault("database.retention", 7*24*time.Hour)
	v.SetDefault("database.prune_schedule", "@hourly")

	v.SetDefault("qdrant.host", "")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.api_key", "")
}

// LoadConfig reads .env, then the optional YAML file at path, then
// TRACKIE_* environment variables, then flags. String values of the form
// ${NAME} are replaced by the environment variable NAME.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRACKIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for _, name := range []string{"mode", "preview", "preview_addr"} {
			if f := flags.Lookup(strings.ReplaceAll(name, "_", "-")); f != nil {
				if err := v.BindPFlag(name, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := resolveEnvPlaceholders(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var placeholder = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

func resolveEnvPlaceholders(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		m := placeholder.FindStringSubmatch(strings.TrimSpace(s))
		if m == nil {
			continue
		}
		value, ok := os.LookupEnv(m[1])
		if !ok || value == "" {
			return fmt.Errorf("config %s: environment variable %s is not set", key, m[1])
		}
		v.Set(key, value)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains([]string{ModeCamera, ModeScreen, ModeNone}, c.Mode), "mode must be camera, screen or none, got %q", c.Mode)
	check(c.Video.FPS > 0, "video.fps must be positive, got %v", c.Video.FPS)
	check(c.Video.JPEGQuality >= 10 && c.Video.JPEGQuality <= 100, "video.jpeg_quality must be within 10-100, got %d", c.Video.JPEGQuality)
	check(c.Vision.ConfidenceThreshold >= 0.1 && c.Vision.ConfidenceThreshold <= 1.0, "vision.confidence_threshold must be within 0.1-1.0, got %v", c.Vision.ConfidenceThreshold)
	check(c.Queues.Inbound > 0, "queues.inbound must be positive, got %d", c.Queues.Inbound)
	check(c.Queues.Outbound > 0, "queues.outbound must be positive, got %d", c.Queues.Outbound)
	check(c.Audio.SendRate > 0 && c.Audio.ReceiveRate > 0 && c.Audio.PlaybackRate > 0, "audio sample rates must be positive")
	check(c.Audio.ChunkSize > 0, "audio.chunk_size must be positive, got %d", c.Audio.ChunkSize)
	check(slices.Contains([]string{"midpoint", "uniform"}, c.Vision.StepSampler), "vision.step_sampler must be midpoint or uniform, got %q", c.Vision.StepSampler)
	check(slices.Contains([]string{"sqlite", "postgres", "none"}, c.Database.Driver), "database.driver must be sqlite, postgres or none, got %q", c.Database.Driver)
	check(c.Model.Provider != "", "model.provider is required")

	return errors.Join(errs...)
}

// PreviewEnabled reports whether the preview server runs: it needs the camera.
func (c *Config) PreviewEnabled() bool {
	return c.Preview && c.Mode == ModeCamera
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProvideLogger logs to stderr; stdout carries the model's text replies.
func ProvideLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	var logger *slog.Logger
	if cfg.LogFormat == "text" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	slog.SetDefault(logger)
	return logger
}
