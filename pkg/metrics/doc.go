/*
Package metrics provides Prometheus metrics and health checks for a
running storage engine process.

Gauges (RingSlots, RingOccupancy, ContainerFootprintBytes, SpanCount)
are republished periodically by a Collector walking a Source over
whatever containers and rings a process has open. Counters and
histograms (TxTotal, TxDuration, TxBusyRetriesTotal) are updated inline
by pkg/container as transactions complete, via ObserveTx and
IncBusyRetry.

	metrics.ObserveTx("container", start, "ok")
	http.Handle("/metrics", metrics.Handler())

HealthChecker tracks readiness of the holstore, timestore, and
tablestore components independently of the Prometheus registry; use
RegisterComponent/UpdateComponent from startup and health-check code,
and HealthHandler/ReadyHandler/LivenessHandler to expose them over HTTP.
*/
package metrics
