// Package pipeline turns one video's frames into a finished landmark
// sequence: classification, ensemble selection, temporal filtering, bone
// projection and gap interpolation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/posetrace/internal/anatomy"
	"github.com/ayusman/posetrace/internal/capture"
	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/ensemble"
	"github.com/ayusman/posetrace/internal/interp"
	"github.com/ayusman/posetrace/internal/pose"
	"github.com/ayusman/posetrace/internal/quality"
	"github.com/ayusman/posetrace/internal/strategy"
	"github.com/ayusman/posetrace/internal/temporal"
)

// Config collects the configuration of every stage.
type Config struct {
	Classifier strategy.ClassifierConfig
	Generator  strategy.GeneratorConfig
	Scorer     quality.Config
	Selector   ensemble.SelectorConfig
	Temporal   temporal.Config
	Anatomy    anatomy.Config
	Interp     interp.Config
	// Analyzer enables frame difficulty analysis when set.
	Analyzer *capture.AnalyzerConfig
}

// DefaultConfig returns every stage's defaults with frame analysis enabled.
func DefaultConfig() Config {
	analyzer := capture.DefaultAnalyzerConfig()
	return Config{
		Classifier: strategy.DefaultClassifierConfig(),
		Generator:  strategy.DefaultGeneratorConfig(),
		Scorer:     quality.DefaultConfig(),
		Selector:   ensemble.DefaultSelectorConfig(),
		Temporal:   temporal.DefaultConfig(),
		Anatomy:    anatomy.DefaultConfig(),
		Interp:     interp.DefaultConfig(),
		Analyzer:   &analyzer,
	}
}

// Stats summarizes a finished run.
type Stats struct {
	Frames     int                 `json:"frames"`
	GapFrames  int                 `json:"gap_frames"`
	Merged     int                 `json:"merged"`
	EarlyExits int                 `json:"early_exits"`
	Attempts   int                 `json:"attempts"`
	Statuses   map[pose.Status]int `json:"statuses"`
	Elapsed    time.Duration       `json:"elapsed"`
}

// Result is the output of one run.
type Result struct {
	RunID     uuid.UUID
	Sequence  pose.Sequence
	Summaries []ensemble.Summary
	Stats     Stats
}

// Pipeline owns the state of one video. It is not safe for concurrent use;
// Batch gives every video its own Pipeline.
type Pipeline struct {
	config       Config
	classifier   *strategy.Classifier
	selector     *ensemble.Selector
	bank         *temporal.Bank
	projector    *anatomy.Projector
	interpolator *interp.Interpolator
	analyzer     *capture.FrameAnalyzer
}

// New creates a Pipeline calling oracle for detections.
func New(oracle ensemble.Oracle, config Config) *Pipeline {
	p := &Pipeline{
		config:     config,
		classifier: strategy.NewClassifier(config.Classifier),
		selector: ensemble.NewSelector(
			strategy.NewGenerator(config.Generator),
			oracle,
			quality.NewScorer(config.Scorer),
			config.Selector,
		),
		bank:         temporal.NewBank(config.Temporal),
		projector:    anatomy.NewProjector(config.Anatomy),
		interpolator: interp.NewInterpolator(config.Interp),
	}
	if config.Analyzer != nil {
		p.analyzer = capture.NewFrameAnalyzer(*config.Analyzer)
	}
	return p
}

// Close releases the frame analyzer.
func (p *Pipeline) Close() {
	if p.analyzer != nil {
		p.analyzer.Close()
	}
}

func (p *Pipeline) reset() {
	p.bank.Reset()
	p.projector.Reset()
	if p.analyzer != nil {
		p.analyzer.Reset()
	}
}

// Run processes every frame of source in order. Frame ids skipped by the
// source are filled with all-missing frames so each id between the first and
// last appears exactly once. Cancellation and an unavailable oracle abort the
// run with no result. The source is not closed.
func (p *Pipeline) Run(ctx context.Context, source capture.Source) (*Result, error) {
	p.reset()
	start := time.Now()

	res := &Result{RunID: uuid.New()}
	logger := log.WithField("run", res.RunID.String())

	var prev *pose.FrameResult
	var prevScore float64
	lastID := -1

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading frame: %w", err)
		}

		if lastID >= 0 && frame.ID <= lastID {
			logger.WithField("frame", frame.ID).Warn("Dropping out-of-order frame")
			frame.Close()
			continue
		}

		if lastID >= 0 {
			for id := lastID + 1; id < frame.ID; id++ {
				out := p.track(pose.NewMissingFrame(id))
				res.Sequence.Frames = append(res.Sequence.Frames, out)
				res.Summaries = append(res.Summaries, ensemble.Summary{
					FrameID: id,
					Label:   pose.LabelMissingDetection,
				})
				res.Stats.GapFrames++
				prev = &out
				prevScore = 0
			}
		}

		prior := strategy.Prior{HasScore: prev != nil, Score: prevScore}
		if p.analyzer != nil {
			prior.Hint = p.analyzer.Analyze(frame.Mat).Any()
		}
		category := p.classifier.Classify(frame.ID, prior)

		selected, summary, err := p.selector.Select(ctx, frame.Mat, frame.ID, category, prev)
		frame.Close()
		if err != nil {
			if errors.Is(err, detector.ErrUnavailable) {
				logger.WithError(err).Error("Detection oracle unavailable, aborting run")
			}
			return nil, fmt.Errorf("frame %d: %w", frame.ID, err)
		}

		out := p.track(selected)
		res.Sequence.Frames = append(res.Sequence.Frames, out)
		res.Summaries = append(res.Summaries, summary)
		res.Stats.Attempts += len(summary.Attempts)
		if summary.Merged {
			res.Stats.Merged++
		}
		if summary.EarlyExit {
			res.Stats.EarlyExits++
		}

		prev = &out
		prevScore = selected.Score
		lastID = frame.ID
	}

	res.Sequence = p.interpolator.Fill(res.Sequence)
	res.Stats.Frames = len(res.Sequence.Frames)
	res.Stats.Statuses = res.Sequence.StatusCounts()
	res.Stats.Elapsed = time.Since(start)

	logger.WithFields(log.Fields{
		"frames":      res.Stats.Frames,
		"gaps":        res.Stats.GapFrames,
		"merged":      res.Stats.Merged,
		"early_exits": res.Stats.EarlyExits,
		"attempts":    res.Stats.Attempts,
		"elapsed":     res.Stats.Elapsed.Round(time.Millisecond),
	}).Info("Run finished")

	return res, nil
}

// track runs the per-frame recovery stages on a selected frame.
func (p *Pipeline) track(frame pose.FrameResult) pose.FrameResult {
	return p.projector.Apply(p.bank.Process(frame))
}
