package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/posetrace/internal/ensemble"
	"github.com/ayusman/posetrace/internal/store"
)

// Save records a finished run with its rows and frame summaries. config is
// stored alongside the run as JSON and may be nil.
func Save(st *store.Store, video string, config any, res *Result) error {
	raw, err := encodeConfig(config)
	if err != nil {
		return err
	}

	id := res.RunID.String()
	if err := st.Runs().Create(&store.Run{ID: id, Video: video, Config: raw}); err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	if err := st.Rows().InsertSequence(id, res.Sequence.Rows()); err != nil {
		return failRun(st, id, fmt.Errorf("storing rows: %w", err))
	}
	if err := st.Frames().InsertSummaries(id, FrameSummaries(res.Summaries)); err != nil {
		return failRun(st, id, fmt.Errorf("storing frame summaries: %w", err))
	}
	if err := st.Runs().Finish(id, res.Stats.Frames, res.Stats); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	log.WithFields(log.Fields{"run": id, "video": video, "frames": res.Stats.Frames}).Debug("Run saved")
	return nil
}

// SaveFailure records a run that could not be processed and returns its ID.
func SaveFailure(st *store.Store, video string, config any, cause error) (string, error) {
	raw, err := encodeConfig(config)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := st.Runs().Create(&store.Run{ID: id, Video: video, Config: raw}); err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	if err := st.Runs().Fail(id, cause); err != nil {
		return "", err
	}
	return id, nil
}

// FrameSummaries flattens selector summaries for storage.
func FrameSummaries(summaries []ensemble.Summary) []store.FrameSummary {
	out := make([]store.FrameSummary, len(summaries))
	for i, s := range summaries {
		out[i] = store.FrameSummary{
			FrameID:   s.FrameID,
			Category:  string(s.Category),
			Winner:    s.Winner,
			Score:     s.Score,
			Label:     s.Label,
			Attempts:  len(s.Attempts),
			Merged:    s.Merged,
			EarlyExit: s.EarlyExit,
		}
	}
	return out
}

func failRun(st *store.Store, id string, cause error) error {
	if err := st.Runs().Fail(id, cause); err != nil {
		log.WithError(err).WithField("run", id).Warn("Failed to mark run failed")
	}
	return cause
}

func encodeConfig(config any) (json.RawMessage, error) {
	if config == nil {
		return nil, nil
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return raw, nil
}
