package vision

import "sync"

// State holds the current Snapshot. Writers swap in a new value; readers get
// an immutable copy and never observe a frame paired with another frame's detections.
type State struct {
	mu      sync.Mutex
	current *Snapshot
}

func NewState() *State {
	return &State{}
}

func (s *State) Write(snap Snapshot) {
	owned := Snapshot{
		Frame:      snap.Frame,
		Detections: snap.Detections.Clone(),
		CapturedAt: snap.CapturedAt,
	}

	s.mu.Lock()
	s.current = &owned
	s.mu.Unlock()
}

func (s *State) Read() (Snapshot, bool) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if cur == nil || cur.Frame == nil {
		return Snapshot{}, false
	}
	return *cur, true
}

func (s *State) LatestFrame() (*Frame, bool) {
	snap, ok := s.Read()
	if !ok {
		return nil, false
	}
	return snap.Frame, true
}

func (s *State) LatestDetections() (DetectionSet, bool) {
	snap, ok := s.Read()
	if !ok || !snap.HasDetections() {
		return nil, false
	}
	return snap.Detections, true
}
