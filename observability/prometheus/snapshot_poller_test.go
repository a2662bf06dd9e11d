package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-async-task/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type executorStub struct {
	stats core.ExecutorStats
}

func (s executorStub) Stats() core.ExecutorStats { return s.stats }

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

type homeStub struct {
	pending   int
	delivered int64
	closed    bool
}

func (s homeStub) PendingCount() int     { return s.pending }
func (s homeStub) DeliveredCount() int64 { return s.delivered }
func (s homeStub) IsClosed() bool        { return s.closed }

func TestSnapshotPoller_CollectsStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("asynctask", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddExecutor("serial-a", executorStub{stats: core.ExecutorStats{
		Type:     "serial",
		Pending:  3,
		Active:   true,
		Rejected: 2,
	}})
	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:          4,
		Active:          2,
		Workers:         8,
		LargestPoolSize: 9,
		Running:         true,
	}})
	poller.AddHome("home", homeStub{pending: 5, delivered: 11, closed: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.executorPending.WithLabelValues("serial-a", "serial"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return pending == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.executorActive.WithLabelValues("serial-a", "serial")); got != 1 {
		t.Fatalf("executor active gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolLargest.WithLabelValues("pool-a")); got != 9 {
		t.Fatalf("pool largest gauge = %v, want 9", got)
	}
	if got := testutil.ToFloat64(poller.homePending.WithLabelValues("home")); got != 5 {
		t.Fatalf("home pending gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(poller.homeClosed.WithLabelValues("home")); got != 1 {
		t.Fatalf("home closed gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_ExecutionContext(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	cfg := core.DefaultExecutionContextConfig()
	cfg.Logger = core.NewNoOpLogger()
	ec := core.NewExecutionContext(cfg)
	defer func() { _ = ec.Shutdown(context.Background()) }()

	poller.AddExecutionContext(ec)
	if started := ec.ThreadPool().PrestartCoreThreads(); started != core.DefaultCorePoolSize {
		t.Fatalf("PrestartCoreThreads started %d workers, want %d", started, core.DefaultCorePoolSize)
	}
	poller.collectOnce()

	if got := testutil.ToFloat64(poller.poolWorkers.WithLabelValues("thread-pool")); got != float64(core.DefaultCorePoolSize) {
		t.Fatalf("pool workers gauge = %v, want %d", got, core.DefaultCorePoolSize)
	}
	if got := testutil.ToFloat64(poller.executorActive.WithLabelValues("thread-pool-serial", "serial")); got != 0 {
		t.Fatalf("serial active gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(poller.homeClosed.WithLabelValues("home")); got != 0 {
		t.Fatalf("home closed gauge = %v, want 0", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("asynctask", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
