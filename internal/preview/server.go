package preview

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eleven-am/trackie/internal/shared"
	"github.com/eleven-am/trackie/internal/vision"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 4
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame pushed to preview viewers.
type Message struct {
	Timestamp  int64               `json:"timestamp"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Detections vision.DetectionSet `json:"detections"`
	JPEG       []byte              `json:"jpeg_base64"`
}

// Server shows what the camera sees: the latest JPEG over HTTP and a live
// websocket stream of frames with their detections.
type Server struct {
	logger *slog.Logger

	mu      sync.RWMutex
	latest  *vision.Snapshot
	clients map[*viewer]struct{}
	closed  bool
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:  logger.With("component", "preview"),
		clients: make(map[*viewer]struct{}),
	}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/preview")
	g.GET("/frame.jpg", s.Frame)
	g.GET("/ws", s.Stream)
}

// Publish stores snap as the latest frame and fans it out to every viewer.
// Slow viewers miss frames.
func (s *Server) Publish(snap vision.Snapshot) {
	if snap.Frame == nil {
		return
	}

	data, err := json.Marshal(Message{
		Timestamp:  snap.Frame.Timestamp,
		Width:      snap.Frame.Width,
		Height:     snap.Frame.Height,
		Detections: snap.Detections,
		JPEG:       snap.Frame.Data,
	})
	if err != nil {
		s.logger.Warn("marshal preview frame failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.latest = &snap
	for v := range s.clients {
		select {
		case v.send <- data:
		default:
			v.dropped.Add(1)
		}
	}
}

func (s *Server) Frame(c echo.Context) error {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		return shared.NotFound("no_frame", shared.ErrNoFrame.Error())
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/jpeg", latest.Frame.Data)
}

func (s *Server) Stream(c echo.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return shared.ServiceUnavailable("preview_closed", "preview is shut down")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	v := &viewer{ws: ws, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	if !s.add(v) {
		ws.Close()
		return nil
	}
	s.logger.Info("preview viewer connected", "remote", c.RealIP())

	go v.writePump(s.logger)
	v.readPump()

	s.remove(v)
	s.logger.Info("preview viewer disconnected", "remote", c.RealIP(), "dropped_frames", v.dropped.Load())
	return nil
}

func (s *Server) add(v *viewer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[v] = struct{}{}
	return true
}

func (s *Server) remove(v *viewer) {
	s.mu.Lock()
	delete(s.clients, v)
	s.mu.Unlock()
	v.close()
}

func (s *Server) Viewers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every viewer and stops accepting frames. Idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := s.clients
	s.clients = make(map[*viewer]struct{})
	s.latest = nil
	s.mu.Unlock()

	for v := range clients {
		v.close()
	}
	return nil
}

type viewer struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func (v *viewer) close() {
	v.once.Do(func() {
		close(v.done)
	})
}

// readPump discards incoming messages and returns when the viewer goes away
// or writePump closes the connection.
func (v *viewer) readPump() {
	v.ws.SetReadLimit(maxMessageSize)
	v.ws.SetReadDeadline(time.Now().Add(pongWait))
	v.ws.SetPongHandler(func(string) error {
		v.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := v.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (v *viewer) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.ws.Close()
	}()

	for {
		select {
		case <-v.done:
			v.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "preview closed"),
				time.Now().Add(writeWait))
			return
		case data := <-v.send:
			v.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("preview write failed", "error", err)
				v.close()
				return
			}
		case <-ticker.C:
			v.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				v.close()
				return
			}
		}
	}
}
