package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/posetrace/internal/capture"
	"github.com/ayusman/posetrace/internal/config"
	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/diag"
	"github.com/ayusman/posetrace/internal/ensemble"
	"github.com/ayusman/posetrace/internal/pipeline"
	"github.com/ayusman/posetrace/internal/pose"
	"github.com/ayusman/posetrace/internal/server"
	"github.com/ayusman/posetrace/internal/store"
)

func TestE2E_ProcessStoreAndServe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	cfg := config.Default()

	mock := detector.NewMockDetector()
	mock.SetLandmarks(detector.StandingPose(0.9))
	pool := detector.NewStaticPool(mock)
	defer pool.Close()
	oracle := ensemble.NewAdapter(pool, cfg.GetOracleTimeout())

	jobs := []pipeline.Job{
		{Name: "solo.mp4", Open: func() (capture.Source, error) { return capture.NewBlankSource(6), nil }},
		{Name: "gappy.mp4", Open: func() (capture.Source, error) {
			return capture.NewMockSource([]int{0, 1, 4, 5}, nil), nil
		}},
		{Name: "missing.mp4", Open: func() (capture.Source, error) { return nil, errors.New("no such file") }},
	}

	runIDs := map[string]string{}
	outcomes := pipeline.Batch(context.Background(), func() *pipeline.Pipeline {
		return pipeline.New(oracle, cfg.Pipeline())
	}, jobs, 1, nil)

	for _, o := range outcomes {
		if o.Err != nil {
			id, err := pipeline.SaveFailure(s, o.Name, cfg, o.Err)
			if err != nil {
				t.Fatalf("SaveFailure(%s) error = %v", o.Name, err)
			}
			runIDs[o.Name] = id
			continue
		}
		if err := pipeline.Save(s, o.Name, cfg, o.Result); err != nil {
			t.Fatalf("Save(%s) error = %v", o.Name, err)
		}
		runIDs[o.Name] = o.Result.RunID.String()
	}

	ts := httptest.NewServer(server.New(server.Config{Store: s}))
	defer ts.Close()
	client := ts.Client()

	getJSON := func(t *testing.T, path string, v any) int {
		t.Helper()
		resp, err := client.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		defer resp.Body.Close()
		if v != nil && resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				t.Fatalf("decode %s: %v", path, err)
			}
		}
		return resp.StatusCode
	}

	t.Run("ListRuns", func(t *testing.T) {
		var resp struct {
			Runs  []store.Run `json:"runs"`
			Count int         `json:"count"`
		}
		if code := getJSON(t, "/api/runs", &resp); code != http.StatusOK {
			t.Fatalf("status = %d, want %d", code, http.StatusOK)
		}
		if resp.Count != 3 {
			t.Fatalf("count = %d, want 3", resp.Count)
		}
		statuses := map[string]store.RunStatus{}
		for _, r := range resp.Runs {
			statuses[r.Video] = r.Status
		}
		if statuses["missing.mp4"] != store.RunFailed {
			t.Errorf("missing.mp4 status = %s, want failed", statuses["missing.mp4"])
		}
		if statuses["solo.mp4"] != store.RunFinished {
			t.Errorf("solo.mp4 status = %s, want finished", statuses["solo.mp4"])
		}
	})

	t.Run("RowsCoverEveryFrameAndLandmark", func(t *testing.T) {
		var resp struct {
			Rows  []pose.Row `json:"rows"`
			Count int        `json:"count"`
		}
		path := fmt.Sprintf("/api/runs/%s/rows", runIDs["gappy.mp4"])
		if code := getJSON(t, path, &resp); code != http.StatusOK {
			t.Fatalf("status = %d, want %d", code, http.StatusOK)
		}
		if resp.Count != 6*pose.NumLandmarks {
			t.Fatalf("count = %d, want %d", resp.Count, 6*pose.NumLandmarks)
		}

		seen := map[[2]int]bool{}
		for _, r := range resp.Rows {
			key := [2]int{r.FrameID, int(r.LandmarkID)}
			if seen[key] {
				t.Fatalf("duplicate row for frame %d landmark %d", r.FrameID, r.LandmarkID)
			}
			seen[key] = true
			if r.Visibility < 0 || r.Visibility > 1 {
				t.Errorf("visibility %f out of range", r.Visibility)
			}
		}
	})

	t.Run("GapFramesAreRecovered", func(t *testing.T) {
		var resp struct {
			Frames []store.FrameSummary `json:"frames"`
		}
		path := fmt.Sprintf("/api/runs/%s/frames", runIDs["gappy.mp4"])
		if code := getJSON(t, path, &resp); code != http.StatusOK {
			t.Fatalf("status = %d, want %d", code, http.StatusOK)
		}
		if len(resp.Frames) != 6 {
			t.Fatalf("frames = %d, want 6", len(resp.Frames))
		}
		for _, f := range resp.Frames[2:4] {
			if f.Label != pose.LabelMissingDetection {
				t.Errorf("frame %d label = %s, want %s", f.FrameID, f.Label, pose.LabelMissingDetection)
			}
		}

		var run struct {
			Counts map[string]int `json:"counts"`
		}
		getJSON(t, "/api/runs/"+runIDs["gappy.mp4"], &run)
		if run.Counts["missing"] != 0 {
			t.Errorf("missing rows = %d, want gaps to be predicted or interpolated", run.Counts["missing"])
		}
	})

	t.Run("FailedRunHasNoRows", func(t *testing.T) {
		var resp struct {
			Count int `json:"count"`
		}
		getJSON(t, fmt.Sprintf("/api/runs/%s/rows", runIDs["missing.mp4"]), &resp)
		if resp.Count != 0 {
			t.Errorf("count = %d, want 0", resp.Count)
		}
	})

	t.Run("Plots", func(t *testing.T) {
		res := outcomes[0].Result
		written, err := diag.PlotAll(res.Sequence, []pose.LandmarkID{pose.LeftWrist, pose.RightAnkle}, tmpDir, "solo_")
		if err != nil {
			t.Fatalf("PlotAll() error = %v", err)
		}
		if len(written) != 2 {
			t.Errorf("plots written = %d, want 2", len(written))
		}
	})

	t.Run("APIStillWorks", func(t *testing.T) {
		if code := getJSON(t, "/api/health", nil); code != http.StatusOK {
			t.Errorf("health check failed after processing")
		}
	})
}

func TestE2E_UnavailableDetector(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	mock := detector.NewMockDetector()
	mock.SetError(detector.ErrUnavailable)
	pool := detector.NewStaticPool(mock)
	defer pool.Close()
	oracle := ensemble.NewAdapter(pool, ensemble.DefaultOracleTimeout)

	jobs := make([]pipeline.Job, 3)
	for i := range jobs {
		jobs[i] = pipeline.Job{
			Name: fmt.Sprintf("video-%d.mp4", i),
			Open: func() (capture.Source, error) { return capture.NewBlankSource(3), nil },
		}
	}

	outcomes := pipeline.Batch(context.Background(), func() *pipeline.Pipeline {
		return pipeline.New(oracle, config.Default().Pipeline())
	}, jobs, 1, nil)

	if !errors.Is(outcomes[0].Err, detector.ErrUnavailable) {
		t.Fatalf("first outcome error = %v, want ErrUnavailable", outcomes[0].Err)
	}
	for _, o := range outcomes[1:] {
		if o.Result != nil {
			t.Errorf("%s: expected no result after the detector became unavailable", o.Name)
		}
	}
}
