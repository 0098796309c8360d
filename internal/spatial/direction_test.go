package spatial

import (
	"testing"

	"github.com/eleven-am/trackie/internal/vision"
)

func boxCenteredAt(x int) vision.Box {
	return vision.Box{X1: x - 5, Y1: 0, X2: x + 5, Y2: 10}
}

func TestEstimateDirection_Bands(t *testing.T) {
	for _, width := range []int{60, 600, 1200, 1920} {
		tests := []struct {
			name   string
			center int
			want   Direction
		}{
			{"sixth is left", width / 6, DirectionLeft},
			{"half is front", width / 2, DirectionFront},
			{"five sixths is right", 5 * width / 6, DirectionRight},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got := EstimateDirection(boxCenteredAt(tt.center), width)
				if got != tt.want {
					t.Errorf("width %d center %d: expected %s, got %s", width, tt.center, tt.want, got)
				}
			})
		}
	}
}

func TestEstimateDirection_ZeroWidth(t *testing.T) {
	if got := EstimateDirection(boxCenteredAt(10), 0); got != DirectionIndeterminate {
		t.Errorf("expected indeterminate, got %s", got)
	}
	if got := EstimateDirection(boxCenteredAt(10), -5); got != DirectionIndeterminate {
		t.Errorf("expected indeterminate for negative width, got %s", got)
	}
}

func TestEstimateDirection_BoundaryIsFront(t *testing.T) {
	if got := EstimateDirection(boxCenteredAt(300), 900); got != DirectionFront {
		t.Errorf("center exactly at one third should be front, got %s", got)
	}
	if got := EstimateDirection(boxCenteredAt(600), 900); got != DirectionFront {
		t.Errorf("center exactly at two thirds should be front, got %s", got)
	}
}

func TestDirection_Phrase(t *testing.T) {
	tests := map[Direction]string{
		DirectionLeft:          "to your left",
		DirectionRight:         "to your right",
		DirectionFront:         "in front of you",
		DirectionIndeterminate: "in an undetermined direction",
	}
	for d, want := range tests {
		if got := d.Phrase(); got != want {
			t.Errorf("%s: expected %q, got %q", d, want, got)
		}
	}
}
