package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
)

// process wraps a long-running external command whose stdout or stdin
// carries the media stream.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	once   sync.Once
	logger *slog.Logger
}

func startProcess(ctx context.Context, logger *slog.Logger, wantStdin bool, name string, args ...string) (*process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	p := &process{cmd: cmd, logger: logger}

	var err error
	if wantStdin {
		if p.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	} else {
		if p.stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	logger.Info("device process started", "command", name, "pid", cmd.Process.Pid)
	return p, nil
}

func (p *process) Close() error {
	var err error
	p.once.Do(func() {
		if p.stdin != nil {
			p.stdin.Close()
		}
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		if werr := p.cmd.Wait(); werr != nil {
			var exitErr *exec.ExitError
			if !errors.As(werr, &exitErr) {
				err = werr
			}
		}
		p.logger.Info("device process stopped", "command", p.cmd.Path)
	})
	return err
}

type AudioDeviceConfig struct {
	Device     string
	SampleRate int
	ChunkSize  int
}

type commandAudioSource struct {
	*process
	rate  int
	chunk int
}

// OpenArecord captures the microphone through ALSA's arecord.
func OpenArecord(cfg AudioDeviceConfig, logger *slog.Logger) AudioSourceOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (AudioSource, error) {
		args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(cfg.SampleRate)}
		if cfg.Device != "" {
			args = append(args, "-D", cfg.Device)
		}
		p, err := startProcess(ctx, logger.With("component", "microphone-device"), false, "arecord", args...)
		if err != nil {
			return nil, err
		}
		return &commandAudioSource{process: p, rate: cfg.SampleRate, chunk: cfg.ChunkSize}, nil
	}
}

func (s *commandAudioSource) ReadChunk() ([]byte, error) {
	buf := make([]byte, s.chunk*2)
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *commandAudioSource) SampleRate() int {
	return s.rate
}

type commandAudioSink struct {
	*process
	rate int
}

// OpenAplay plays audio through ALSA's aplay.
func OpenAplay(cfg AudioDeviceConfig, logger *slog.Logger) AudioSinkOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (AudioSink, error) {
		args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(cfg.SampleRate)}
		if cfg.Device != "" {
			args = append(args, "-D", cfg.Device)
		}
		p, err := startProcess(ctx, logger.With("component", "speaker-device"), true, "aplay", args...)
		if err != nil {
			return nil, err
		}
		return &commandAudioSink{process: p, rate: cfg.SampleRate}, nil
	}
}

func (s *commandAudioSink) Write(pcm []byte) error {
	_, err := s.stdin.Write(pcm)
	return err
}

func (s *commandAudioSink) SampleRate() int {
	return s.rate
}

type VideoDeviceConfig struct {
	// Input is the ffmpeg input format: "v4l2" for a camera, "x11grab" for
	// the screen.
	Input  string
	Device string
	FPS    float64
}

type commandFrameSource struct {
	*process
	scanner *bufio.Scanner
}

// OpenFFmpeg reads frames from ffmpeg as an MJPEG stream on stdout.
func OpenFFmpeg(cfg VideoDeviceConfig, logger *slog.Logger) FrameSourceOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (FrameSource, error) {
		args := []string{
			"-loglevel", "error",
			"-f", cfg.Input,
			"-i", cfg.Device,
			"-r", strconv.FormatFloat(cfg.FPS, 'f', -1, 64),
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-",
		}
		p, err := startProcess(ctx, logger.With("component", "video-device"), false, "ffmpeg", args...)
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(p.stdout)
		scanner.Buffer(make([]byte, 0, 256*1024), 16*1024*1024)
		scanner.Split(splitJPEG)
		return &commandFrameSource{process: p, scanner: scanner}, nil
	}
}

func (s *commandFrameSource) ReadFrame() (image.Image, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// splitJPEG is a bufio.SplitFunc cutting a concatenated MJPEG stream into
// single images. Bytes before a start marker are skipped.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegStart)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return max(0, len(data)-1), nil, nil
	}

	end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegStart) + end + len(jpegEnd)
	return stop, data[start:stop], nil
}
