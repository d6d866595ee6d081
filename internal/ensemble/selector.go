package ensemble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/posetrace/internal/pose"
	"github.com/ayusman/posetrace/internal/quality"
	"github.com/ayusman/posetrace/internal/strategy"
)

// Mode selects how attempts are combined.
type Mode string

const (
	// ModeAuto keeps the best whole set and falls back to merging when no
	// strategy scores well.
	ModeAuto Mode = "auto"
	// ModeWhole always keeps the best whole set.
	ModeWhole Mode = "whole"
	// ModeMerge always assembles the best sample per landmark.
	ModeMerge Mode = "merge"
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeWhole, ModeMerge:
		return m, nil
	case "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown selection mode %q", s)
}

// SelectorConfig holds selection thresholds.
type SelectorConfig struct {
	Mode Mode
	// GoodEnough stops evaluation once a strategy reaches it.
	GoodEnough float64
	// MergeBelow triggers merging in ModeAuto when the best score is lower.
	MergeBelow float64
	// MinMergeAttempts is the number of successful attempts merging needs.
	MinMergeAttempts int
	// Parallelism is the number of strategies evaluated concurrently.
	Parallelism int
}

// DefaultSelectorConfig returns a SelectorConfig with sensible default values.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Mode:             ModeAuto,
		GoodEnough:       0.9,
		MergeBelow:       0.5,
		MinMergeAttempts: 2,
		Parallelism:      1,
	}
}

// Attempt records one strategy's outcome for a frame.
type Attempt struct {
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
	Label    string  `json:"label"`
	Absent   bool    `json:"absent"`
}

// Summary describes how a frame's result was chosen.
type Summary struct {
	FrameID   int               `json:"frame_id"`
	Category  strategy.Category `json:"category"`
	Attempts  []Attempt         `json:"attempts"`
	Winner    string            `json:"winner"`
	Score     float64           `json:"score"`
	Label     string            `json:"label"`
	Merged    bool              `json:"merged"`
	EarlyExit bool              `json:"early_exit"`
}

// Selector picks the best landmark set for a frame.
type Selector struct {
	generator *strategy.Generator
	oracle    Oracle
	scorer    *quality.Scorer
	config    SelectorConfig
}

// NewSelector creates a Selector.
func NewSelector(generator *strategy.Generator, oracle Oracle, scorer *quality.Scorer, config SelectorConfig) *Selector {
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.Mode == "" {
		config.Mode = ModeAuto
	}
	return &Selector{
		generator: generator,
		oracle:    oracle,
		scorer:    scorer,
		config:    config,
	}
}

type attempt struct {
	strategy strategy.Strategy
	scored   pose.ScoredDetection
	adjusted float64
	err      error
}

func (a attempt) ok() bool {
	return a.err == nil
}

// Select evaluates the strategies for category in priority order, in waves
// of Parallelism concurrent calls. The first strategy in order reaching
// GoodEnough wins, so the result does not depend on Parallelism. Only
// fatal errors are returned; absent detections yield an all-missing frame.
func (s *Selector) Select(ctx context.Context, frame *gocv.Mat, frameID int, category strategy.Category, prev *pose.FrameResult) (pose.FrameResult, Summary, error) {
	strategies := s.generator.StrategiesFor(category, frameID)
	summary := Summary{FrameID: frameID, Category: category}

	var attempts []attempt
	winner := -1

	for start := 0; start < len(strategies); start += s.config.Parallelism {
		end := min(start+s.config.Parallelism, len(strategies))
		wave := s.runWave(ctx, frame, frameID, strategies[start:end], prev)

		for _, a := range wave {
			if a.err != nil && !errors.Is(a.err, ErrNoDetection) {
				return pose.FrameResult{}, summary, fmt.Errorf("frame %d strategy %s: %w", frameID, a.strategy.Name, a.err)
			}
		}

		attempts = append(attempts, wave...)

		if s.config.Mode == ModeMerge {
			continue
		}
		for i := start; i < len(attempts); i++ {
			if attempts[i].ok() && attempts[i].adjusted >= s.config.GoodEnough {
				winner = i
				break
			}
		}
		if winner >= 0 {
			summary.EarlyExit = true
			break
		}
	}

	for _, a := range attempts {
		at := Attempt{Strategy: a.strategy.Name, Absent: !a.ok()}
		if a.ok() {
			at.Score = a.adjusted
			at.Label = a.scored.Label
		}
		summary.Attempts = append(summary.Attempts, at)
	}

	if winner < 0 {
		winner = best(attempts)
	}
	if winner < 0 {
		result := pose.NewMissingFrame(frameID)
		result.Category = string(category)
		summary.Label = result.Label
		return result, summary, nil
	}

	chosen := attempts[winner].scored
	chosen.Score = attempts[winner].adjusted

	if !summary.EarlyExit && s.shouldMerge(attempts, chosen.Score) {
		merged := s.scorer.Score(mergeAttempts(attempts, frameID), prev)
		if s.config.Mode == ModeMerge || merged.Score >= chosen.Score {
			chosen = merged
			summary.Merged = true
		}
	}

	result := pose.FrameFromDetection(chosen)
	result.Category = string(category)

	summary.Winner = result.Source
	summary.Score = result.Score
	summary.Label = result.Label

	log.WithFields(log.Fields{
		"frame":    frameID,
		"category": category,
		"winner":   summary.Winner,
		"score":    fmt.Sprintf("%.3f", summary.Score),
		"attempts": len(summary.Attempts),
	}).Debug("frame selected")

	return result, summary, nil
}

func (s *Selector) runWave(ctx context.Context, frame *gocv.Mat, frameID int, wave []strategy.Strategy, prev *pose.FrameResult) []attempt {
	out := make([]attempt, len(wave))

	var wg sync.WaitGroup
	for i, st := range wave {
		wg.Add(1)
		go func(i int, st strategy.Strategy) {
			defer wg.Done()
			out[i] = s.evaluate(ctx, frame, frameID, st, prev)
		}(i, st)
	}
	wg.Wait()

	return out
}

func (s *Selector) evaluate(ctx context.Context, frame *gocv.Mat, frameID int, st strategy.Strategy, prev *pose.FrameResult) attempt {
	a := attempt{strategy: st}

	det, err := s.oracle.Detect(ctx, frame, frameID, st)
	if err != nil {
		a.err = err
		return a
	}
	if det == nil || len(det.Samples) == 0 {
		a.err = ErrNoDetection
		return a
	}

	a.scored = s.scorer.Score(*det, prev)
	bonus := st.Bonus
	if bonus <= 0 {
		bonus = 1
	}
	a.adjusted = a.scored.Score * bonus
	return a
}

func (s *Selector) shouldMerge(attempts []attempt, bestScore float64) bool {
	succeeded := 0
	for _, a := range attempts {
		if a.ok() {
			succeeded++
		}
	}

	switch s.config.Mode {
	case ModeMerge:
		return succeeded >= 1
	case ModeAuto:
		return bestScore < s.config.MergeBelow && succeeded >= s.config.MinMergeAttempts
	}
	return false
}

// best returns the index of the highest adjusted score. Ties keep the
// earlier strategy.
func best(attempts []attempt) int {
	idx := -1
	for i, a := range attempts {
		if !a.ok() {
			continue
		}
		if idx < 0 || a.adjusted > attempts[idx].adjusted {
			idx = i
		}
	}
	return idx
}

// mergeAttempts takes, per landmark, the most visible sample across the
// successful attempts. Ties keep the earlier strategy. Each sample keeps the
// strategy it came from.
func mergeAttempts(attempts []attempt, frameID int) pose.FrameDetection {
	var picked [pose.NumLandmarks]*pose.Sample

	for _, a := range attempts {
		if !a.ok() {
			continue
		}
		for _, smp := range a.scored.Samples {
			if !smp.ID.Valid() {
				continue
			}
			cur := picked[smp.ID]
			if cur == nil || smp.Visibility > cur.Visibility {
				c := smp
				c.Source = a.strategy.Name
				picked[smp.ID] = &c
			}
		}
	}

	det := pose.FrameDetection{FrameID: frameID, Strategy: pose.SourceMerged}
	for _, p := range picked {
		if p != nil {
			det.Samples = append(det.Samples, *p)
		}
	}
	return det
}
