package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/posetrace/internal/capture"
	"github.com/ayusman/posetrace/internal/detector"
)

// Job is one video to process.
type Job struct {
	Name string
	Open func() (capture.Source, error)
}

// Outcome is the result of one job. Exactly one of Result and Err is set.
type Outcome struct {
	Index  int
	Name   string
	Result *Result
	Err    error
}

// Batch processes jobs on up to workers goroutines, each job with its own
// Pipeline from newPipeline. Jobs share nothing but what newPipeline hands
// out, typically one detector pool. An unavailable oracle cancels the jobs
// that have not finished. onDone, if set, is called once per job from the
// worker goroutine. Outcomes are returned in job order.
func Batch(ctx context.Context, newPipeline func() *Pipeline, jobs []Job, workers int, onDone func(Outcome)) []Outcome {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]Outcome, len(jobs))
	next := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers && w < len(jobs); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				o := runJob(ctx, newPipeline, jobs[i])
				o.Index = i
				if errors.Is(o.Err, detector.ErrUnavailable) {
					cancel()
				}
				outcomes[i] = o
				if onDone != nil {
					onDone(o)
				}
			}
		}()
	}

	for i := range jobs {
		next <- i
	}
	close(next)
	wg.Wait()

	return outcomes
}

func runJob(ctx context.Context, newPipeline func() *Pipeline, job Job) Outcome {
	o := Outcome{Name: job.Name}
	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}

	source, err := job.Open()
	if err != nil {
		o.Err = fmt.Errorf("opening %s: %w", job.Name, err)
		return o
	}
	defer func() {
		if err := source.Close(); err != nil {
			log.WithError(err).WithField("video", job.Name).Warn("Closing frame source")
		}
	}()

	p := newPipeline()
	defer p.Close()

	o.Result, o.Err = p.Run(ctx, source)
	if o.Err != nil {
		o.Err = fmt.Errorf("%s: %w", job.Name, o.Err)
	}
	return o
}
