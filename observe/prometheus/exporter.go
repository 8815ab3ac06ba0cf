package prometheus

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Andrej220/go-utils/dispatch"
)

const defaultNamespace = "dispatch"

// ExecutorCollector exposes executor stat snapshots as Prometheus metrics.
// It pulls a fresh dispatch.ExecutorStats on every scrape.
type ExecutorCollector struct {
	stats func() dispatch.ExecutorStats
	name  string

	degree     *prom.Desc
	usage      *prom.Desc
	retryQueue *prom.Desc
	completed  *prom.Desc
	retried    *prom.Desc
	failed     *prom.Desc
}

// NewExecutorCollector creates and registers a collector over stats, which
// is typically (*dispatch.Executor).Stats. The name label distinguishes
// multiple executors in one registry.
func NewExecutorCollector(namespace, name string, stats func() dispatch.ExecutorStats, reg prom.Registerer) (*ExecutorCollector, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	labels := prom.Labels{"executor": normalizeLabel(name, "default")}

	c := &ExecutorCollector{
		stats: stats,
		name:  name,
		degree: prom.NewDesc(prom.BuildFQName(namespace, "", "executor_degree"),
			"Current concurrency ceiling.", nil, labels),
		usage: prom.NewDesc(prom.BuildFQName(namespace, "", "executor_usage"),
			"Worker invocations currently in flight.", nil, labels),
		retryQueue: prom.NewDesc(prom.BuildFQName(namespace, "", "executor_retry_queue"),
			"Messages waiting in the retry mailbox.", nil, labels),
		completed: prom.NewDesc(prom.BuildFQName(namespace, "", "executor_completed_total"),
			"Total messages completed successfully.", nil, labels),
		retried: prom.NewDesc(prom.BuildFQName(namespace, "", "executor_retried_total"),
			"Total recoverable failures requeued.", nil, labels),
		failed: prom.NewDesc(prom.BuildFQName(namespace, "", "executor_failed_total"),
			"Total fatal failures.", nil, labels),
	}
	return registerCollector(reg, c)
}

// Describe implements prometheus.Collector.
func (c *ExecutorCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.degree
	ch <- c.usage
	ch <- c.retryQueue
	ch <- c.completed
	ch <- c.retried
	ch <- c.failed
}

// Collect implements prometheus.Collector.
func (c *ExecutorCollector) Collect(ch chan<- prom.Metric) {
	s := c.stats()
	ch <- prom.MustNewConstMetric(c.degree, prom.GaugeValue, float64(s.Degree))
	ch <- prom.MustNewConstMetric(c.usage, prom.GaugeValue, float64(s.Usage))
	ch <- prom.MustNewConstMetric(c.retryQueue, prom.GaugeValue, float64(s.RetryQueue))
	ch <- prom.MustNewConstMetric(c.completed, prom.CounterValue, float64(s.Completed))
	ch <- prom.MustNewConstMetric(c.retried, prom.CounterValue, float64(s.Retried))
	ch <- prom.MustNewConstMetric(c.failed, prom.CounterValue, float64(s.Failed))
}

// PoolCollector exposes pool stat snapshots as Prometheus metrics.
type PoolCollector struct {
	stats func() dispatch.PoolStats
	name  string

	capacity  *prom.Desc
	available *prom.Desc
	given     *prom.Desc
	created   *prom.Desc
	disposed  *prom.Desc
	evicted   *prom.Desc
}

// NewPoolCollector creates and registers a collector over stats, which is
// typically (*dispatch.Pool).Stats.
func NewPoolCollector(namespace, name string, stats func() dispatch.PoolStats, reg prom.Registerer) (*PoolCollector, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	labels := prom.Labels{"pool": normalizeLabel(name, "default")}

	c := &PoolCollector{
		stats: stats,
		name:  name,
		capacity: prom.NewDesc(prom.BuildFQName(namespace, "", "pool_capacity"),
			"Configured instance bound.", nil, labels),
		available: prom.NewDesc(prom.BuildFQName(namespace, "", "pool_available"),
			"Idle instances in the pool.", nil, labels),
		given: prom.NewDesc(prom.BuildFQName(namespace, "", "pool_given"),
			"Instances currently leased.", nil, labels),
		created: prom.NewDesc(prom.BuildFQName(namespace, "", "pool_created_total"),
			"Total instances created.", nil, labels),
		disposed: prom.NewDesc(prom.BuildFQName(namespace, "", "pool_disposed_total"),
			"Total instances disposed.", nil, labels),
		evicted: prom.NewDesc(prom.BuildFQName(namespace, "", "pool_evicted_total"),
			"Total instances evicted after idling.", nil, labels),
	}
	return registerCollector(reg, c)
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.capacity
	ch <- c.available
	ch <- c.given
	ch <- c.created
	ch <- c.disposed
	ch <- c.evicted
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prom.Metric) {
	s := c.stats()
	ch <- prom.MustNewConstMetric(c.capacity, prom.GaugeValue, float64(s.Capacity))
	ch <- prom.MustNewConstMetric(c.available, prom.GaugeValue, float64(s.Available))
	ch <- prom.MustNewConstMetric(c.given, prom.GaugeValue, float64(s.Given))
	ch <- prom.MustNewConstMetric(c.created, prom.CounterValue, float64(s.Created))
	ch <- prom.MustNewConstMetric(c.disposed, prom.CounterValue, float64(s.Disposed))
	ch <- prom.MustNewConstMetric(c.evicted, prom.CounterValue, float64(s.Evicted))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
