package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Swind/go-async-task/core"
)

// lockedWriter serialises writes from the caller goroutine and the home goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// stepper sleeps through a number of steps, publishing percent progress.
type stepper struct {
	id    int
	delay time.Duration
	out   io.Writer
}

func (s *stepper) OnPreExecute() {
	fmt.Fprintf(s.out, "task %d: submitted\n", s.id)
}

func (s *stepper) DoInBackground(ctx context.Context, progress core.ProgressPublisher[int], steps ...int) (int, error) {
	total := 1
	if len(steps) > 0 && steps[0] > 0 {
		total = steps[0]
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	for i := 1; i <= total; i++ {
		timer.Reset(s.delay)
		select {
		case <-ctx.Done():
			return i - 1, ctx.Err()
		case <-timer.C:
		}
		progress.PublishProgress(i * 100 / total)
	}
	return total, nil
}

func (s *stepper) OnProgressUpdate(values ...int) {
	fmt.Fprintf(s.out, "task %d: %d%%\n", s.id, values[len(values)-1])
}

func (s *stepper) OnPostExecute(done int) {
	fmt.Fprintf(s.out, "task %d: finished %d steps\n", s.id, done)
}

func (s *stepper) OnCancelled(done int) {
	fmt.Fprintf(s.out, "task %d: cancelled after %d steps\n", s.id, done)
}
