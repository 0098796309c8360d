package spatial

import "github.com/eleven-am/trackie/internal/vision"

type Direction string

const (
	DirectionLeft          Direction = "left"
	DirectionFront         Direction = "front"
	DirectionRight         Direction = "right"
	DirectionIndeterminate Direction = "indeterminate"
)

func (d Direction) Phrase() string {
	switch d {
	case DirectionLeft:
		return "to your left"
	case DirectionRight:
		return "to your right"
	case DirectionFront:
		return "in front of you"
	default:
		return "in an undetermined direction"
	}
}

// EstimateDirection places the box's horizontal center into one of three
// equal bands of the frame width.
func EstimateDirection(box vision.Box, frameWidth int) Direction {
	if frameWidth <= 0 {
		return DirectionIndeterminate
	}

	center := box.CenterX()
	third := float64(frameWidth) / 3.0

	switch {
	case center < third:
		return DirectionLeft
	case center > float64(frameWidth)-third:
		return DirectionRight
	default:
		return DirectionFront
	}
}
