package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/eleven-am/trackie/internal/capture"
	"github.com/eleven-am/trackie/internal/faces"
	"github.com/eleven-am/trackie/internal/health"
	"github.com/eleven-am/trackie/internal/inference"
	"github.com/eleven-am/trackie/internal/journal"
	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/model"
	"github.com/eleven-am/trackie/internal/preview"
	"github.com/eleven-am/trackie/internal/session"
	"github.com/eleven-am/trackie/internal/shared"
	"github.com/eleven-am/trackie/internal/spatial"
	"github.com/eleven-am/trackie/internal/tools"
	"github.com/eleven-am/trackie/internal/vision"
	"go.uber.org/fx"
)

// SessionID identifies the single assistant session of this process.
type SessionID string

// Queues holds the two media queues between producers, the model and the
// speaker.
type Queues struct {
	Inbound  *media.Queue
	Outbound *media.Queue
}

func ProvideSessionID() SessionID {
	return SessionID(shared.NewID("sess_"))
}

func ProvideQueues(cfg *Config, logger *slog.Logger) Queues {
	return Queues{
		Inbound:  media.NewQueue("inbound", cfg.Queues.Inbound, logger),
		Outbound: media.NewQueue("outbound", cfg.Queues.Outbound, logger),
	}
}

func ProvideVisionState() *vision.State {
	return vision.NewState()
}

func ProvideModelChannel(cfg *Config, logger *slog.Logger) (model.Channel, error) {
	return model.New(context.Background(), model.Config{
		Provider:        cfg.Model.Provider,
		APIKey:          cfg.Model.APIKey,
		Model:           cfg.Model.Name,
		Temperature:     cfg.Model.Temperature,
		Voice:           cfg.Model.Voice,
		LanguageCode:    cfg.Model.Language,
		MediaResolution: cfg.Model.MediaResolution,
	}, logger)
}

func stepSampler(name string) spatial.RangeSampler {
	if name == "uniform" {
		return spatial.UniformSampler{}
	}
	return spatial.MidpointSampler{}
}

// ProvideToolRegistry registers the tools whose collaborators are
// configured. Nil pointers are kept out of the interface fields so the
// handlers can tell a missing collaborator apart.
func ProvideToolRegistry(
	cfg *Config,
	id SessionID,
	state *vision.State,
	client *inference.Client,
	faceRegistry *faces.Registry,
	store *vision.Store,
	logger *slog.Logger,
) *tools.Registry {
	hc := tools.HandlersConfig{
		SessionID: string(id),
		Vision:    state,
		Synonyms:  spatial.DefaultSynonyms,
		Sampler:   stepSampler(cfg.Vision.StepSampler),
		Logger:    logger,

		HistoryWindow: cfg.Vision.HistoryTTL,
	}
	if client != nil {
		hc.Detector = client
		hc.Depth = client
		hc.Embedder = client
	}
	if faceRegistry != nil {
		hc.Faces = faceRegistry
	}
	if store != nil {
		hc.History = store
	}

	registry := tools.NewRegistry()
	tools.NewHandlers(hc).Register(registry)
	logger.Info("tools registered", "tools", registry.Names())
	return registry
}

// ProvidePreviewServer returns nil unless the preview is enabled.
func ProvidePreviewServer(cfg *Config, logger *slog.Logger) *preview.Server {
	if !cfg.PreviewEnabled() {
		return nil
	}
	return preview.NewServer(logger)
}

type captureParams struct {
	fx.In

	Config    *Config
	SessionID SessionID
	Queues    Queues
	State     *vision.State
	Inference *inference.Client
	Store     *vision.Store
	Preview   *preview.Server
	Logger    *slog.Logger
}

// ProvideCaptureTasks builds the producers for the selected mode. The
// microphone runs in every mode.
func ProvideCaptureTasks(p captureParams) []session.Task {
	cfg := p.Config

	tasks := []session.Task{
		{Name: "microphone", Runner: capture.NewMicrophone(capture.MicrophoneConfig{
			Open: capture.OpenArecord(capture.AudioDeviceConfig{
				Device:     cfg.Audio.InputDevice,
				SampleRate: cfg.Audio.SendRate,
				ChunkSize:  cfg.Audio.ChunkSize,
			}, p.Logger),
			Queue:  p.Queues.Inbound,
			Logger: p.Logger,
		})},
	}

	camera := capture.CameraConfig{
		SessionID:       string(p.SessionID),
		UserName:        cfg.UserName,
		Queue:           p.Queues.Inbound,
		State:           p.State,
		Encoder:         vision.NewEncoder(cfg.Video.MaxDimension, cfg.Video.JPEGQuality),
		WatchList:       cfg.Vision.WatchList,
		AlertCooldown:   cfg.Vision.AlertCooldown,
		FPS:             cfg.Video.FPS,
		MaxReadFailures: cfg.Video.MaxReadFailures,
		Logger:          p.Logger,
	}

	switch cfg.Mode {
	case ModeCamera:
		camera.Open = capture.OpenFFmpeg(capture.VideoDeviceConfig{
			Input:  "v4l2",
			Device: cfg.Video.CameraDevice,
			FPS:    cfg.Video.FPS,
		}, p.Logger)
		if p.Inference != nil {
			camera.Detector = p.Inference
		}
		if p.Store != nil {
			camera.History = p.Store
			camera.Alerts = p.Store
		}
		if p.Preview != nil {
			camera.Preview = p.Preview
		}
		tasks = append(tasks, session.Task{Name: "camera", Runner: capture.NewCamera(camera)})
	case ModeScreen:
		camera.Open = capture.OpenFFmpeg(capture.VideoDeviceConfig{
			Input:  "x11grab",
			Device: cfg.Video.ScreenDevice,
			FPS:    cfg.Video.FPS,
		}, p.Logger)
		tasks = append(tasks, session.Task{Name: "screen", Runner: capture.NewCamera(camera)})
	}
	return tasks
}

// ProvidePlayback builds the speaker. The supervisor runs it outside the task
// scope so model audio already queued is still heard after the session ends.
func ProvidePlayback(cfg *Config, queues Queues, logger *slog.Logger) *capture.Speaker {
	return capture.NewSpeaker(capture.SpeakerConfig{
		Open: capture.OpenAplay(capture.AudioDeviceConfig{
			Device:     cfg.Audio.OutputDevice,
			SampleRate: cfg.Audio.PlaybackRate,
		}, logger),
		Queue:      queues.Outbound,
		SourceRate: cfg.Audio.ReceiveRate,
		Logger:     logger,
	})
}

type supervisorParams struct {
	fx.In

	Config    *Config
	SessionID SessionID
	Channel   model.Channel
	Queues    Queues
	Registry  *tools.Registry
	Tasks     []session.Task
	Playback  *capture.Speaker
	Preview   *preview.Server
	Journal   *journal.Store
	Store     *vision.Store
	Logger    *slog.Logger
}

func ProvideSupervisor(p supervisorParams) *session.Supervisor {
	cfg := p.Config
	sc := session.Config{
		SessionID:      string(p.SessionID),
		UserName:       cfg.UserName,
		Mode:           cfg.Mode,
		Provider:       cfg.Model.Provider,
		PromptPath:     cfg.Model.PromptPath,
		ToolsPath:      cfg.Model.ToolsPath,
		Channel:        p.Channel,
		Inbound:        p.Queues.Inbound,
		Outbound:       p.Queues.Outbound,
		Registry:       p.Registry,
		Tasks:          p.Tasks,
		Text:           os.Stdout,
		ModelAudioRate: cfg.Audio.ReceiveRate,
		ToolTimeout:    cfg.Model.ToolTimeout,
		Logger:         p.Logger,
	}
	if p.Preview != nil {
		sc.Preview = p.Preview
	}
	if p.Playback != nil {
		sc.Playback = p.Playback
	}
	if p.Journal != nil {
		sc.Journal = p.Journal
	}
	if p.Store != nil {
		sc.Sightings = p.Store
	}
	return session.NewSupervisor(sc)
}

// RunSession starts the supervisor when the app starts and shuts the app
// down when the session ends.
func RunSession(lc fx.Lifecycle, sup *session.Supervisor, shutdowner fx.Shutdowner, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := 0
				if err := sup.Run(ctx); err != nil {
					code = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Error("shutdown after session end", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return errors.New("session did not drain before shutdown deadline")
			}
		},
	})
}

// sessionProbe feeds the health endpoint.
type sessionProbe struct {
	id      SessionID
	sup     *session.Supervisor
	preview *preview.Server
}

func (p sessionProbe) Stats() health.SessionStats {
	stats := health.SessionStats{
		ID:       string(p.id),
		State:    string(p.sup.State()),
		Thinking: p.sup.Gate().IsThinking(),
	}
	if p.preview != nil {
		stats.Viewers = p.preview.Viewers()
	}
	return stats
}

var AssistantModule = fx.Options(
	fx.Provide(
		ProvideSessionID,
		ProvideQueues,
		ProvideVisionState,
		ProvideModelChannel,
		ProvideToolRegistry,
		ProvidePreviewServer,
		ProvideCaptureTasks,
		ProvidePlayback,
		ProvideSupervisor,
	),
	fx.Invoke(RunSession),
)
