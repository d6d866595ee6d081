package strategy

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Strategy is one attempt at a frame: a chain of transforms and the
// confidence threshold passed to the estimator.
type Strategy struct {
	Name          string
	Steps         []Transform
	MinConfidence float64
	// Bonus multiplies the strategy's quality score. 1 means neutral.
	Bonus float64
}

// Geometry records how the transforms moved pixels, so landmark coordinates
// can be mapped back to the original frame.
type Geometry struct {
	FlipX bool
	FlipY bool
	// SwapSides is set when the image is reflected and the estimator's
	// left/right labels refer to the mirrored body.
	SwapSides bool
}

// Geometry folds the strategy's geometric steps. Two mirrors cancel out.
func (s Strategy) Geometry() Geometry {
	var g Geometry
	for _, t := range s.Steps {
		switch t.Kind {
		case Mirror:
			g.FlipX = !g.FlipX
			g.SwapSides = !g.SwapSides
		case Rotate180:
			g.FlipX = !g.FlipX
			g.FlipY = !g.FlipY
		}
	}
	return g
}

// Apply runs the steps on a copy of src and returns the result. The caller
// owns the returned Mat. Empty frames are passed through as empty copies.
func (s Strategy) Apply(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() || len(s.Steps) == 0 {
		return src.Clone(), nil
	}

	cur := src.Clone()
	for _, t := range s.Steps {
		next := gocv.NewMat()
		if err := t.apply(cur, &next); err != nil {
			next.Close()
			cur.Close()
			return gocv.NewMat(), fmt.Errorf("strategy %s: %w", s.Name, err)
		}
		cur.Close()
		cur = next
	}
	return cur, nil
}

func (s Strategy) String() string {
	return fmt.Sprintf("%s(conf=%.2f)", s.Name, s.MinConfidence)
}
