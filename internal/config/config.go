// Package config loads the JSON run configuration and maps it onto the
// configuration types of each processing stage.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/posetrace/internal/anatomy"
	"github.com/ayusman/posetrace/internal/capture"
	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/ensemble"
	"github.com/ayusman/posetrace/internal/interp"
	"github.com/ayusman/posetrace/internal/pipeline"
	"github.com/ayusman/posetrace/internal/pose"
	"github.com/ayusman/posetrace/internal/quality"
	"github.com/ayusman/posetrace/internal/strategy"
	"github.com/ayusman/posetrace/internal/temporal"
)

// maxFileSize bounds the configuration file read by Load.
const maxFileSize = 1 << 20

// Weights are the quality score component weights.
type Weights struct {
	Visibility float64 `json:"visibility"`
	Anatomy    float64 `json:"anatomy"`
	Temporal   float64 `json:"temporal"`
	Symmetry   float64 `json:"symmetry"`
}

// Config is the root configuration. Fields omitted from a loaded file keep
// their Default values.
type Config struct {
	// Temporal recovery
	ColdStartFrames         int     `json:"cold_start_frames"`
	MinPredictionConfidence float64 `json:"min_prediction_confidence"`
	TrustThreshold          float64 `json:"trust_threshold"`
	MaxPositionChange       float64 `json:"max_position_change"`
	MaxInnovation           float64 `json:"max_innovation"`
	MaxVelocity             float64 `json:"max_velocity"`
	ProcessNoisePos         float64 `json:"process_noise_pos"`
	ProcessNoiseVel         float64 `json:"process_noise_vel"`
	MeasurementNoise        float64 `json:"measurement_noise"`
	MaxPredictFrames        int     `json:"max_predict_frames,omitempty"` // 0 follows max_gap_frames

	// Interpolation
	MaxGapFrames           int     `json:"max_gap_frames"`
	AnchorThreshold        float64 `json:"anchor_threshold"`
	InterpolatedVisibility float64 `json:"interpolated_visibility"`

	// Bone length projection
	BoneHistory  int     `json:"bone_history"`
	BoneMinRatio float64 `json:"bone_min_ratio"`
	BoneMaxRatio float64 `json:"bone_max_ratio"`

	// Classification and strategies
	CategoryRanges          []strategy.Range          `json:"category_ranges,omitempty"`
	CategoryFrames          map[int]strategy.Category `json:"category_frames,omitempty"`
	EscalateBelow           float64                   `json:"escalate_below"`
	StrategyBudget          map[strategy.Category]int `json:"strategy_budget_per_category"`
	MirrorBonus             float64                   `json:"mirror_bonus"`
	LowerEnhanceBonus       float64                   `json:"lower_enhance_bonus"`
	LowerEnhanceBonusFrames int                       `json:"lower_enhance_bonus_frames"`
	FrameAnalysis           bool                      `json:"frame_analysis"`

	// Scoring
	Weights        Weights `json:"score_weights"`
	RequiredRegion string  `json:"required_region"`
	GoodAbove      float64 `json:"good_above"`
	ModerateAbove  float64 `json:"moderate_above"`

	// Selection
	SelectionMode string  `json:"selection_mode"`
	GoodEnough    float64 `json:"good_enough_score"`
	MergeBelow    float64 `json:"merge_below_score"`
	Parallelism   int     `json:"parallelism"`

	// Oracle
	OracleTimeout   string  `json:"oracle_timeout"` // duration string like "10s"
	ModelComplexity int     `json:"model_complexity"`
	MinConfidence   float64 `json:"min_confidence"`
	DetectorPool    int     `json:"detector_pool_size"`
	FrameStride     int     `json:"frame_stride"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tc := temporal.DefaultConfig()
	ic := interp.DefaultConfig()
	ac := anatomy.DefaultConfig()
	cc := strategy.DefaultClassifierConfig()
	gc := strategy.DefaultGeneratorConfig()
	qc := quality.DefaultConfig()
	sc := ensemble.DefaultSelectorConfig()
	dc := detector.DefaultConfig()

	return &Config{
		ColdStartFrames:         tc.ColdStartFrames,
		MinPredictionConfidence: tc.MinPredictionConfidence,
		TrustThreshold:          tc.TrustThreshold,
		MaxPositionChange:       tc.MaxPositionChange,
		MaxInnovation:           tc.MaxInnovation,
		MaxVelocity:             tc.MaxVelocity,
		ProcessNoisePos:         tc.ProcessNoisePos,
		ProcessNoiseVel:         tc.ProcessNoiseVel,
		MeasurementNoise:        tc.MeasurementNoise,

		MaxGapFrames:           ic.MaxGapFrames,
		AnchorThreshold:        ic.AnchorThreshold,
		InterpolatedVisibility: ic.InterpolatedVisibility,

		BoneHistory:  ac.History,
		BoneMinRatio: ac.MinRatio,
		BoneMaxRatio: ac.MaxRatio,

		EscalateBelow:           cc.EscalateBelow,
		StrategyBudget:          gc.Budget,
		MirrorBonus:             gc.MirrorBonus,
		LowerEnhanceBonus:       gc.LowerEnhanceBonus,
		LowerEnhanceBonusFrames: gc.LowerEnhanceFrames,
		FrameAnalysis:           true,

		Weights: Weights{
			Visibility: qc.VisibilityWeight,
			Anatomy:    qc.AnatomyWeight,
			Temporal:   qc.TemporalWeight,
			Symmetry:   qc.SymmetryWeight,
		},
		RequiredRegion: string(qc.RequiredRegion),
		GoodAbove:      qc.GoodAbove,
		ModerateAbove:  qc.ModerateAbove,

		SelectionMode: string(sc.Mode),
		GoodEnough:    sc.GoodEnough,
		MergeBelow:    sc.MergeBelow,
		Parallelism:   sc.Parallelism,

		OracleTimeout:   ensemble.DefaultOracleTimeout.String(),
		ModelComplexity: dc.ModelComplexity,
		MinConfidence:   dc.MinConfidence,
		DetectorPool:    1,
		FrameStride:     1,
	}
}

// Load reads a JSON configuration file and overlays it on Default. The
// result is validated.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	budget := cfg.StrategyBudget
	cfg.StrategyBudget = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	// a partial budget map only overrides the categories it names
	for c, n := range cfg.StrategyBudget {
		budget[c] = n
	}
	cfg.StrategyBudget = budget

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"min_prediction_confidence", c.MinPredictionConfidence},
		{"trust_threshold", c.TrustThreshold},
		{"anchor_threshold", c.AnchorThreshold},
		{"interpolated_visibility", c.InterpolatedVisibility},
		{"min_confidence", c.MinConfidence},
		{"good_enough_score", c.GoodEnough},
		{"merge_below_score", c.MergeBelow},
		{"escalate_below", c.EscalateBelow},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", f.name, f.value)
		}
	}

	if c.MinPredictionConfidence > c.TrustThreshold {
		return fmt.Errorf("min_prediction_confidence (%f) must not exceed trust_threshold (%f)",
			c.MinPredictionConfidence, c.TrustThreshold)
	}
	if c.ColdStartFrames < 0 {
		return fmt.Errorf("cold_start_frames must be non-negative, got %d", c.ColdStartFrames)
	}
	if c.MaxGapFrames < 1 {
		return fmt.Errorf("max_gap_frames must be at least 1, got %d", c.MaxGapFrames)
	}
	if c.MaxPredictFrames < 0 {
		return fmt.Errorf("max_predict_frames must be non-negative, got %d", c.MaxPredictFrames)
	}
	if c.MaxPositionChange <= 0 || c.MaxInnovation <= 0 || c.MaxVelocity <= 0 {
		return fmt.Errorf("max_position_change, max_innovation and max_velocity must be positive")
	}
	if c.ProcessNoisePos <= 0 || c.ProcessNoiseVel <= 0 || c.MeasurementNoise <= 0 {
		return fmt.Errorf("process and measurement noise must be positive")
	}
	if c.BoneHistory < 1 {
		return fmt.Errorf("bone_history must be at least 1, got %d", c.BoneHistory)
	}
	if c.BoneMinRatio <= 0 || c.BoneMinRatio >= 1 || c.BoneMaxRatio <= 1 {
		return fmt.Errorf("bone ratio band [%f, %f] must contain 1", c.BoneMinRatio, c.BoneMaxRatio)
	}

	for cat, n := range c.StrategyBudget {
		if _, err := strategy.ParseCategory(string(cat)); err != nil {
			return fmt.Errorf("strategy_budget_per_category: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("strategy_budget_per_category[%s] must be at least 1, got %d", cat, n)
		}
	}
	for _, r := range c.CategoryRanges {
		if _, err := strategy.ParseCategory(string(r.Category)); err != nil {
			return fmt.Errorf("category_ranges: %w", err)
		}
		if r.To < r.From {
			return fmt.Errorf("category range %d-%d is empty", r.From, r.To)
		}
	}
	for id, cat := range c.CategoryFrames {
		if _, err := strategy.ParseCategory(string(cat)); err != nil {
			return fmt.Errorf("category_frames[%d]: %w", id, err)
		}
	}

	w := c.Weights
	if w.Visibility < 0 || w.Anatomy < 0 || w.Temporal < 0 || w.Symmetry < 0 {
		return fmt.Errorf("score_weights must be non-negative")
	}
	if w.Visibility+w.Anatomy+w.Temporal+w.Symmetry == 0 {
		return fmt.Errorf("score_weights must not all be zero")
	}
	if c.RequiredRegion != "" {
		if _, err := pose.ParseRegion(c.RequiredRegion); err != nil {
			return fmt.Errorf("required_region: %w", err)
		}
	}
	if c.ModerateAbove > c.GoodAbove {
		return fmt.Errorf("moderate_above (%f) must not exceed good_above (%f)", c.ModerateAbove, c.GoodAbove)
	}

	if _, err := ensemble.ParseMode(c.SelectionMode); err != nil {
		return err
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}

	if d, err := time.ParseDuration(c.OracleTimeout); err != nil {
		return fmt.Errorf("invalid oracle_timeout '%s': %w", c.OracleTimeout, err)
	} else if d <= 0 {
		return fmt.Errorf("oracle_timeout must be positive, got %s", d)
	}
	if c.ModelComplexity < 0 || c.ModelComplexity > 2 {
		return fmt.Errorf("model_complexity must be 0, 1 or 2, got %d", c.ModelComplexity)
	}
	if c.DetectorPool < 1 {
		return fmt.Errorf("detector_pool_size must be at least 1, got %d", c.DetectorPool)
	}
	if c.FrameStride < 1 {
		return fmt.Errorf("frame_stride must be at least 1, got %d", c.FrameStride)
	}
	return nil
}

// GetOracleTimeout returns the per-call oracle timeout, or the default when
// the value cannot be parsed.
func (c *Config) GetOracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.OracleTimeout)
	if err != nil || d <= 0 {
		return ensemble.DefaultOracleTimeout
	}
	return d
}

// Temporal returns the filter bank configuration.
func (c *Config) Temporal() temporal.Config {
	tc := temporal.DefaultConfig()
	tc.ColdStartFrames = c.ColdStartFrames
	tc.MinPredictionConfidence = c.MinPredictionConfidence
	tc.TrustThreshold = c.TrustThreshold
	tc.MaxPositionChange = c.MaxPositionChange
	tc.MaxInnovation = c.MaxInnovation
	tc.MaxVelocity = c.MaxVelocity
	tc.ProcessNoisePos = c.ProcessNoisePos
	tc.ProcessNoiseVel = c.ProcessNoiseVel
	tc.MeasurementNoise = c.MeasurementNoise
	tc.MaxPredictFrames = c.MaxPredictFrames
	if tc.MaxPredictFrames == 0 {
		tc.MaxPredictFrames = c.MaxGapFrames
	}
	return tc
}

// Interp returns the gap interpolator configuration.
func (c *Config) Interp() interp.Config {
	return interp.Config{
		AnchorThreshold:        c.AnchorThreshold,
		MaxGapFrames:           c.MaxGapFrames,
		InterpolatedVisibility: c.InterpolatedVisibility,
	}
}

// Anatomy returns the bone projector configuration.
func (c *Config) Anatomy() anatomy.Config {
	return anatomy.Config{
		History:        c.BoneHistory,
		MinRatio:       c.BoneMinRatio,
		MaxRatio:       c.BoneMaxRatio,
		TrustThreshold: c.TrustThreshold,
	}
}

// Classifier returns the frame classifier configuration.
func (c *Config) Classifier() strategy.ClassifierConfig {
	return strategy.ClassifierConfig{
		Ranges:        c.CategoryRanges,
		Frames:        c.CategoryFrames,
		EscalateBelow: c.EscalateBelow,
	}
}

// Generator returns the strategy generator configuration.
func (c *Config) Generator() strategy.GeneratorConfig {
	return strategy.GeneratorConfig{
		Budget:             c.StrategyBudget,
		MirrorBonus:        c.MirrorBonus,
		LowerEnhanceBonus:  c.LowerEnhanceBonus,
		LowerEnhanceFrames: c.LowerEnhanceBonusFrames,
	}
}

// Scorer returns the quality scorer configuration.
func (c *Config) Scorer() quality.Config {
	qc := quality.DefaultConfig()
	qc.VisibilityWeight = c.Weights.Visibility
	qc.AnatomyWeight = c.Weights.Anatomy
	qc.TemporalWeight = c.Weights.Temporal
	qc.SymmetryWeight = c.Weights.Symmetry
	qc.RequiredRegion = pose.Region(c.RequiredRegion)
	qc.GoodAbove = c.GoodAbove
	qc.ModerateAbove = c.ModerateAbove
	qc.TemporalMinVisibility = c.TrustThreshold
	return qc
}

// Selector returns the ensemble selector configuration.
func (c *Config) Selector() ensemble.SelectorConfig {
	sc := ensemble.DefaultSelectorConfig()
	if mode, err := ensemble.ParseMode(c.SelectionMode); err == nil {
		sc.Mode = mode
	}
	sc.GoodEnough = c.GoodEnough
	sc.MergeBelow = c.MergeBelow
	sc.Parallelism = c.Parallelism
	return sc
}

// Detector returns the MediaPipe detector configuration.
func (c *Config) Detector() detector.Config {
	dc := detector.DefaultConfig()
	dc.ModelComplexity = c.ModelComplexity
	dc.MinConfidence = c.MinConfidence
	return dc
}

// Pipeline assembles the configuration of every stage.
func (c *Config) Pipeline() pipeline.Config {
	pc := pipeline.Config{
		Classifier: c.Classifier(),
		Generator:  c.Generator(),
		Scorer:     c.Scorer(),
		Selector:   c.Selector(),
		Temporal:   c.Temporal(),
		Anatomy:    c.Anatomy(),
		Interp:     c.Interp(),
	}
	if c.FrameAnalysis {
		ac := capture.DefaultAnalyzerConfig()
		pc.Analyzer = &ac
	}
	return pc
}
