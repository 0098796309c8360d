package spatial

import (
	"slices"

	"github.com/eleven-am/trackie/internal/vision"
)

const (
	SurfaceToleranceAbove = 30
	SurfaceToleranceBelow = 45
)

// IsOnSurface reports whether box rests on any detected surface: its center
// lies strictly inside the surface's x-span and its bottom edge sits within
// [top-30, top+45] of the surface's top edge.
func IsOnSurface(box vision.Box, set vision.DetectionSet, classes ClassTable) bool {
	centerX := box.CenterX()
	bottom := box.Y2

	for _, d := range set {
		name := classes.Name(d.ClassID, d.ClassName)
		if !slices.Contains(SurfaceClasses, name) {
			continue
		}

		s := d.Box
		alignedX := float64(s.X1) < centerX && centerX < float64(s.X2)
		alignedY := bottom >= s.Y1-SurfaceToleranceAbove && bottom <= s.Y1+SurfaceToleranceBelow
		if alignedX && alignedY {
			return true
		}
	}
	return false
}
