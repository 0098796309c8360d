package spatial

import (
	"fmt"
	"strings"
)

type Location struct {
	Match     Match
	Direction Direction
	OnSurface bool
	Steps     int
}

// Sentence renders a location as the answer returned to the model.
func (l Location) Sentence() string {
	var parts []string
	if l.OnSurface {
		parts = append(parts, "on a surface")
	}
	if l.Steps > 0 {
		unit := "steps"
		if l.Steps == 1 {
			unit = "step"
		}
		parts = append(parts, fmt.Sprintf("about %d %s away", l.Steps, unit))
	}
	parts = append(parts, l.Direction.Phrase())

	return fmt.Sprintf("The %s is %s.", l.Match.ClassName, strings.Join(parts, ", "))
}
