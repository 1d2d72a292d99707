package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"tradecore/internal/schema"
)

// QueueDepth is the fill level of one category queue.
type QueueDepth struct {
	Category schema.EventCategory
	Depth    int
	Capacity int
}

// BusCollector exports bus counters and queue depths to Prometheus.
type BusCollector struct {
	metrics *Metrics
	depths  func() []QueueDepth

	published *prometheus.Desc
	delivered *prometheus.Desc
	dropped   *prometheus.Desc
	failures  *prometheus.Desc
	depth     *prometheus.Desc
	capacity  *prometheus.Desc
	active    *prometheus.Desc
}

var _ prometheus.Collector = (*BusCollector)(nil)

// NewBusCollector builds a collector. depths may be nil for engines without
// queues.
func NewBusCollector(namespace string, metrics *Metrics, depths func() []QueueDepth) *BusCollector {
	label := []string{"category"}
	return &BusCollector{
		metrics:   metrics,
		depths:    depths,
		published: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "published_total"), "Events accepted by the bus.", label, nil),
		delivered: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "delivered_total"), "Listener invocations.", label, nil),
		dropped:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "dropped_total"), "Events shed by backpressure.", label, nil),
		failures:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "listener_failures_total"), "Listener invocations that failed.", label, nil),
		depth:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "queue_depth"), "Events waiting in a category queue.", label, nil),
		capacity:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "queue_capacity"), "Capacity of a category queue.", label, nil),
		active:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "active_dispatch"), "In-flight listener tasks.", nil, nil),
	}
}

func (c *BusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.delivered
	ch <- c.dropped
	ch <- c.failures
	ch <- c.depth
	ch <- c.capacity
	ch <- c.active
}

func (c *BusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()
	for category, counters := range snap.Categories {
		name := category.String()
		ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(counters.Published), name)
		ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(counters.Delivered), name)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(counters.Dropped), name)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(counters.ListenerFailures), name)
	}
	if c.depths != nil {
		for _, q := range c.depths() {
			name := q.Category.String()
			ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(q.Depth), name)
			ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(q.Capacity), name)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(snap.ActiveDispatch))
}
