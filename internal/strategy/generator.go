package strategy

// Shared transform steps.
var (
	stepIdentity  = Transform{Kind: Identity}
	stepBright    = Transform{Kind: BrightnessContrast, Alpha: 1.3, Beta: 20}
	stepContrast  = Transform{Kind: BrightnessContrast, Alpha: 1.5, Beta: 0}
	stepLowerEnh  = Transform{Kind: RegionContrast, Region: LowerHalf, ClipLimit: 3.0}
	stepFullEnh   = Transform{Kind: RegionContrast, Region: FullFrame, ClipLimit: 2.0}
	stepDenoise   = Transform{Kind: Blur, Kernel: 5}
	stepMirror    = Transform{Kind: Mirror}
	stepRotate180 = Transform{Kind: Rotate180}
)

func newStrategy(name string, conf float64, steps ...Transform) Strategy {
	return Strategy{Name: name, Steps: steps, MinConfidence: conf, Bonus: 1}
}

// catalog lists the strategies tried per category, best first.
var catalog = map[Category][]Strategy{
	Standard: {
		newStrategy("baseline", 0.5, stepIdentity),
		newStrategy("brightness", 0.4, stepBright),
	},
	Moderate: {
		newStrategy("baseline", 0.5, stepIdentity),
		newStrategy("brightness", 0.4, stepBright),
		newStrategy("lower_enhance", 0.3, stepLowerEnh),
		newStrategy("denoise", 0.4, stepDenoise),
	},
	KnownProblem: {
		newStrategy("lower_enhance", 0.3, stepLowerEnh),
		newStrategy("baseline", 0.5, stepIdentity),
		newStrategy("contrast", 0.3, stepContrast),
		newStrategy("lower_enhance_bright", 0.25, stepBright, stepLowerEnh),
		newStrategy("mirror", 0.4, stepMirror),
		newStrategy("denoise", 0.3, stepDenoise),
	},
	Rotation: {
		newStrategy("mirror", 0.4, stepMirror),
		newStrategy("baseline", 0.5, stepIdentity),
		newStrategy("rotate180", 0.4, stepRotate180),
		newStrategy("mirror_bright", 0.3, stepMirror, stepBright),
		newStrategy("brightness", 0.3, stepBright),
	},
	Severe: {
		newStrategy("baseline", 0.3, stepIdentity),
		newStrategy("contrast", 0.3, stepContrast),
		newStrategy("lower_enhance", 0.2, stepLowerEnh),
		newStrategy("full_enhance", 0.2, stepFullEnh),
		newStrategy("lower_enhance_bright", 0.2, stepBright, stepLowerEnh),
		newStrategy("mirror", 0.3, stepMirror),
		newStrategy("mirror_lower_enhance", 0.2, stepMirror, stepLowerEnh),
		newStrategy("denoise", 0.2, stepDenoise),
		newStrategy("rotate180", 0.3, stepRotate180),
		newStrategy("low_confidence", 0.1, stepIdentity),
	},
}

// GeneratorConfig holds per-category budgets and score bonuses.
type GeneratorConfig struct {
	// Budget caps the number of strategies per category. Missing or
	// non-positive entries leave the catalog untouched except that at least
	// one strategy is always returned.
	Budget map[Category]int
	// MirrorBonus multiplies mirrored strategies on Rotation frames.
	MirrorBonus float64
	// LowerEnhanceBonus multiplies lower-half enhancement strategies on
	// the first LowerEnhanceFrames frames.
	LowerEnhanceBonus  float64
	LowerEnhanceFrames int
}

// DefaultGeneratorConfig returns the default budgets and bonuses.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Budget: map[Category]int{
			Standard:     2,
			Moderate:     4,
			KnownProblem: 6,
			Rotation:     5,
			Severe:       10,
		},
		MirrorBonus:        1.1,
		LowerEnhanceBonus:  1.05,
		LowerEnhanceFrames: 30,
	}
}

// Generator yields the ordered strategy list for a frame.
type Generator struct {
	config GeneratorConfig
}

// NewGenerator creates a Generator.
func NewGenerator(config GeneratorConfig) *Generator {
	budget := make(map[Category]int, len(config.Budget))
	for c, n := range config.Budget {
		budget[c] = n
	}
	config.Budget = budget
	return &Generator{config: config}
}

// StrategiesFor returns the strategies to try for a frame of category cat,
// best first. The result is a fresh slice; unknown categories fall back to
// the Standard list.
func (g *Generator) StrategiesFor(cat Category, frameID int) []Strategy {
	list, ok := catalog[cat]
	if !ok {
		list = catalog[Standard]
	}

	n := len(list)
	if b, ok := g.config.Budget[cat]; ok && b > 0 && b < n {
		n = b
	}

	out := make([]Strategy, n)
	for i := 0; i < n; i++ {
		s := list[i]
		s.Steps = append([]Transform(nil), s.Steps...)
		if cat == Rotation && s.Geometry().SwapSides && g.config.MirrorBonus > 0 {
			s.Bonus *= g.config.MirrorBonus
		}
		if frameID < g.config.LowerEnhanceFrames && isLowerEnhance(s) && g.config.LowerEnhanceBonus > 0 {
			s.Bonus *= g.config.LowerEnhanceBonus
		}
		out[i] = s
	}
	return out
}

func isLowerEnhance(s Strategy) bool {
	for _, t := range s.Steps {
		if t.Kind == RegionContrast && t.Region == LowerHalf {
			return true
		}
	}
	return false
}
