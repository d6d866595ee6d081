package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	log "github.com/sirupsen/logrus"

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

const defaultPlotLandmarks = "15,16,25,26,27,28"

type options struct {
	configPath    string
	dbPath        string
	workers       int
	plotDir       string
	plotLandmarks string
	serveAddr     string
	verbose       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "tuning config file (.json)")
	flag.StringVar(&opts.dbPath, "db", "", "results database (default ~/.posetrace/posetrace.db)")
	flag.IntVar(&opts.workers, "workers", 1, "videos processed concurrently")
	flag.StringVar(&opts.plotDir, "plot-dir", "", "write trajectory plots for each run into this directory")
	flag.StringVar(&opts.plotLandmarks, "plot-landmarks", defaultPlotLandmarks, "comma-separated landmark ids to plot")
	flag.StringVar(&opts.serveAddr, "serve", "", "serve the results API on this address after processing")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: posetrace [flags] video...\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}

	videos := flag.Args()
	if len(videos) == 0 && opts.serveAddr == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, videos); err != nil {
		log.Fatal(err)
	}
}

func run(opts options, videos []string) error {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	plotIDs, err := parseLandmarks(opts.plotLandmarks)
	if err != nil {
		return err
	}

	dbPath, err := resolveDBPath(opts.dbPath)
	if err != nil {
		return err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(videos) > 0 {
		if err := process(ctx, cfg, st, videos, opts.workers, opts.plotDir, plotIDs); err != nil {
			return err
		}
	}

	if opts.serveAddr != "" {
		srv := server.New(server.Config{StaticDir: findWebDir(), Store: st})
		return srv.ListenAndServe(ctx, opts.serveAddr)
	}
	return nil
}

func process(ctx context.Context, cfg *config.Config, st *store.Store, videos []string, workers int, plotDir string, plotIDs []pose.LandmarkID) error {
	detCfg := cfg.Detector()
	pool, err := detector.NewPool(func() (detector.Detector, error) {
		return detector.NewMediaPipeDetector(detCfg)
	}, cfg.DetectorPool)
	if err != nil {
		return err
	}
	defer pool.Close()

	oracle := ensemble.NewAdapter(pool, cfg.GetOracleTimeout())
	pipeCfg := cfg.Pipeline()

	jobs := make([]pipeline.Job, len(videos))
	for i, path := range videos {
		jobs[i] = pipeline.Job{
			Name: path,
			Open: func() (capture.Source, error) {
				v, err := capture.OpenVideoFile(path, cfg.FrameStride)
				if err != nil {
					return nil, err
				}
				log.WithFields(log.Fields{
					"video":  v.Path(),
					"fps":    v.FPS(),
					"frames": v.FrameCount(),
					"stride": cfg.FrameStride,
				}).Info("Processing video")
				return v, nil
			},
		}
	}

	if plotDir != "" {
		if err := os.MkdirAll(plotDir, 0755); err != nil {
			return fmt.Errorf("creating plot directory: %w", err)
		}
	}

	bar := pb.StartNew(len(videos))
	var mu sync.Mutex
	failed := 0

	outcomes := pipeline.Batch(ctx, func() *pipeline.Pipeline {
		return pipeline.New(oracle, pipeCfg)
	}, jobs, workers, func(o pipeline.Outcome) {
		defer bar.Increment()
		if err := record(st, cfg, o, plotDir, plotIDs); err != nil {
			log.WithError(err).WithField("video", o.Name).Error("Failed to record run")
			mu.Lock()
			failed++
			mu.Unlock()
		}
	})
	bar.Finish()

	for _, o := range outcomes {
		if errors.Is(o.Err, detector.ErrUnavailable) {
			return o.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(videos))
	}
	return nil
}

// record persists one batch outcome and renders its plots.
func record(st *store.Store, cfg *config.Config, o pipeline.Outcome, plotDir string, plotIDs []pose.LandmarkID) error {
	if o.Err != nil {
		if errors.Is(o.Err, context.Canceled) {
			return o.Err
		}
		id, err := pipeline.SaveFailure(st, o.Name, cfg, o.Err)
		if err != nil {
			return err
		}
		log.WithError(o.Err).WithFields(log.Fields{"run": id, "video": o.Name}).Warn("Video failed")
		return o.Err
	}

	if err := pipeline.Save(st, o.Name, cfg, o.Result); err != nil {
		return err
	}

	if plotDir != "" {
		prefix := fmt.Sprintf("%s_%s_", strings.TrimSuffix(filepath.Base(o.Name), filepath.Ext(o.Name)), o.Result.RunID.String()[:8])
		written, err := diag.PlotAll(o.Result.Sequence, plotIDs, plotDir, prefix)
		if err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		log.WithFields(log.Fields{"video": o.Name, "plots": len(written)}).Debug("Plots written")
	}
	return nil
}

func parseLandmarks(list string) ([]pose.LandmarkID, error) {
	var ids []pose.LandmarkID
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid landmark id %q", part)
		}
		id := pose.LandmarkID(n)
		if !id.Valid() {
			return nil, fmt.Errorf("landmark id %d out of range", n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func resolveDBPath(path string) (string, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("finding home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".posetrace", "posetrace.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return path, nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.posetrace/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".posetrace", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
