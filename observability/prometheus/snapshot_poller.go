package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-async-task/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current thread pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// ExecutorSnapshotProvider provides current serial executor stats snapshots.
type ExecutorSnapshotProvider interface {
	Stats() core.ExecutorStats
}

// HomeSnapshotProvider exposes the backlog of a coordinating goroutine.
type HomeSnapshotProvider interface {
	PendingCount() int
	DeliveredCount() int64
	IsClosed() bool
}

// SnapshotPoller periodically exports pool, executor and dispatcher
// snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	mu        sync.RWMutex
	pools     map[string]PoolSnapshotProvider
	executors map[string]ExecutorSnapshotProvider
	homes     map[string]HomeSnapshotProvider

	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolWorkers   *prom.GaugeVec
	poolLargest   *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolRejected  *prom.GaugeVec
	poolRunning   *prom.GaugeVec

	executorPending  *prom.GaugeVec
	executorActive   *prom.GaugeVec
	executorRejected *prom.GaugeVec

	homePending   *prom.GaugeVec
	homeDelivered *prom.GaugeVec
	homeClosed    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func gauge(namespace, name, help string, labels ...string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "asynctask"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval:  interval,
		pools:     make(map[string]PoolSnapshotProvider),
		executors: make(map[string]ExecutorSnapshotProvider),
		homes:     make(map[string]HomeSnapshotProvider),

		poolQueued:    gauge(namespace, "pool_queued", "Queued work items per pool.", "pool"),
		poolActive:    gauge(namespace, "pool_active", "Workers running an item per pool.", "pool"),
		poolWorkers:   gauge(namespace, "pool_workers", "Live workers per pool.", "pool"),
		poolLargest:   gauge(namespace, "pool_largest_workers", "Largest worker count seen per pool.", "pool"),
		poolCompleted: gauge(namespace, "pool_completed", "Completed work item snapshot per pool.", "pool"),
		poolRejected:  gauge(namespace, "pool_rejected", "Rejected submission snapshot per pool.", "pool"),
		poolRunning:   gauge(namespace, "pool_running", "Pool running state (1=running, 0=shut down).", "pool"),

		executorPending:  gauge(namespace, "executor_pending", "Items waiting in a serial executor.", "executor", "type"),
		executorActive:   gauge(namespace, "executor_active", "Serial executor active state (1=active, 0=idle).", "executor", "type"),
		executorRejected: gauge(namespace, "executor_rejected", "Serial executor rejection snapshot.", "executor", "type"),

		homePending:   gauge(namespace, "home_pending", "Notifications waiting for the home goroutine.", "home"),
		homeDelivered: gauge(namespace, "home_delivered", "Notifications delivered snapshot.", "home"),
		homeClosed:    gauge(namespace, "home_closed", "Home dispatcher closed state (1=closed, 0=open).", "home"),
	}

	for _, c := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolLargest,
		&p.poolCompleted, &p.poolRejected, &p.poolRunning,
		&p.executorPending, &p.executorActive, &p.executorRejected,
		&p.homePending, &p.homeDelivered, &p.homeClosed,
	} {
		registered, err := registerCollector(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.pools[normalizeLabel(name, "pool")] = provider
	p.mu.Unlock()
}

// AddExecutor adds or replaces a serial executor snapshot provider by name.
func (p *SnapshotPoller) AddExecutor(name string, provider ExecutorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.executors[normalizeLabel(name, "executor")] = provider
	p.mu.Unlock()
}

// AddHome adds or replaces a dispatcher snapshot provider by name.
func (p *SnapshotPoller) AddHome(name string, provider HomeSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.homes[normalizeLabel(name, "home")] = provider
	p.mu.Unlock()
}

// AddExecutionContext tracks the pool, the serial executor and, when it is a
// Dispatcher, the home of ec.
func (p *SnapshotPoller) AddExecutionContext(ec *core.ExecutionContext) {
	if p == nil || ec == nil {
		return
	}
	pool := ec.ThreadPool()
	p.AddPool(pool.Name(), pool)
	serial := ec.Serial()
	p.AddExecutor(serial.Stats().Name, serial)
	if d := ec.Dispatcher(); d != nil {
		p.AddHome(d.Name(), d)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolLargest.WithLabelValues(name).Set(float64(stats.LargestPoolSize))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.poolRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}

	for name, provider := range p.executors {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.executorPending.WithLabelValues(name, typeLabel).Set(float64(stats.Pending))
		p.executorActive.WithLabelValues(name, typeLabel).Set(boolGauge(stats.Active))
		p.executorRejected.WithLabelValues(name, typeLabel).Set(float64(stats.Rejected))
	}

	for name, provider := range p.homes {
		p.homePending.WithLabelValues(name).Set(float64(provider.PendingCount()))
		p.homeDelivered.WithLabelValues(name).Set(float64(provider.DeliveredCount()))
		p.homeClosed.WithLabelValues(name).Set(boolGauge(provider.IsClosed()))
	}
}
