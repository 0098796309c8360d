package vision

import "time"

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) CenterX() float64 {
	return float64(b.X1+b.X2) / 2.0
}

func (b Box) CenterY() float64 {
	return float64(b.Y1+b.Y2) / 2.0
}

func (b Box) Width() int {
	return b.X2 - b.X1
}

func (b Box) Height() int {
	return b.Y2 - b.Y1
}

type Detection struct {
	Box        Box     `json:"box"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// DetectionSet holds every detection of one frame. Order carries no meaning.
type DetectionSet []Detection

func (s DetectionSet) Clone() DetectionSet {
	if s == nil {
		return nil
	}
	out := make(DetectionSet, len(s))
	copy(out, s)
	return out
}

func (s DetectionSet) ClassNames() []string {
	seen := make(map[string]struct{}, len(s))
	names := make([]string, 0, len(s))
	for _, d := range s {
		if _, ok := seen[d.ClassName]; ok {
			continue
		}
		seen[d.ClassName] = struct{}{}
		names = append(names, d.ClassName)
	}
	return names
}

// Frame is an encoded camera frame. Width and Height are the dimensions of
// the encoded image, which is also the coordinate space of its detections.
type Frame struct {
	SessionID string
	Timestamp int64
	Data      []byte
	Width     int
	Height    int
}

// Snapshot pairs a frame with the detections computed from it. A nil
// Detections means no detector ran; an empty non-nil set means nothing was found.
type Snapshot struct {
	Frame      *Frame
	Detections DetectionSet
	CapturedAt time.Time
}

func (s Snapshot) HasDetections() bool {
	return s.Detections != nil
}

// DepthMap is a row-major relative inverse-depth map: larger values are closer.
type DepthMap struct {
	Width  int
	Height int
	Values []float32
}

func (m *DepthMap) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

func (m *DepthMap) Valid() bool {
	return m != nil && m.Width > 0 && m.Height > 0 && len(m.Values) >= m.Width*m.Height
}

type Sighting struct {
	ClassName string `json:"class_name"`
	LastSeen  int64  `json:"last_seen"`
	Count     int    `json:"count"`
}
