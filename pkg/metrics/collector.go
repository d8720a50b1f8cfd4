package metrics

import "time"

// RingStat is one ring's shape as of a collection tick.
type RingStat struct {
	File   string // container file path
	Ring   string // ring name
	Kind   string // "timestore", "tablestore", or "versionstore"
	NSlots int64  // 0 means unbounded
	NAvail int64  // records currently stored
	NSpans int64  // schema spans tracked; only meaningful when Kind == "tablestore"
}

// ContainerStat is one container file's on-disk footprint.
type ContainerStat struct {
	File  string
	Bytes int64
}

// Source supplies the samples a Collector republishes as gauges. A
// caller (typically cmd/habitat's serve command) implements it over
// whichever containers it has open.
type Source interface {
	RingStats() ([]RingStat, error)
	ContainerStats() ([]ContainerStat, error)
}

// Collector periodically walks a Source and republishes its samples as
// Prometheus gauges, the way the original collector polled a manager.
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector that samples source every interval
// (15s if interval is zero).
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting on a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRingMetrics()
	c.collectContainerMetrics()
}

func (c *Collector) collectRingMetrics() {
	stats, err := c.source.RingStats()
	if err != nil {
		return
	}
	for _, s := range stats {
		RingSlots.WithLabelValues(s.File, s.Ring, s.Kind).Set(float64(s.NSlots))
		RingOccupancy.WithLabelValues(s.File, s.Ring, s.Kind).Set(float64(s.NAvail))
		if s.Kind == "tablestore" {
			SpanCount.WithLabelValues(s.File, s.Ring).Set(float64(s.NSpans))
		}
	}
}

func (c *Collector) collectContainerMetrics() {
	stats, err := c.source.ContainerStats()
	if err != nil {
		return
	}
	for _, s := range stats {
		ContainerFootprintBytes.WithLabelValues(s.File).Set(float64(s.Bytes))
	}
}
