package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	rings      []RingStat
	containers []ContainerStat
}

func (f fakeSource) RingStats() ([]RingStat, error)           { return f.rings, nil }
func (f fakeSource) ContainerStats() ([]ContainerStat, error) { return f.containers, nil }

func TestCollectorPublishesRingAndContainerGauges(t *testing.T) {
	src := fakeSource{
		rings: []RingStat{
			{File: "test.db", Ring: "cpu60", Kind: "timestore", NSlots: 100, NAvail: 42},
		},
		containers: []ContainerStat{
			{File: "test.db", Bytes: 4096},
		},
	}

	c := NewCollector(src, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(RingSlots.WithLabelValues("test.db", "cpu60", "timestore")); got != 100 {
		t.Errorf("RingSlots = %v, want 100", got)
	}
	if got := testutil.ToFloat64(RingOccupancy.WithLabelValues("test.db", "cpu60", "timestore")); got != 42 {
		t.Errorf("RingOccupancy = %v, want 42", got)
	}
	if got := testutil.ToFloat64(ContainerFootprintBytes.WithLabelValues("test.db")); got != 4096 {
		t.Errorf("ContainerFootprintBytes = %v, want 4096", got)
	}
}

func TestCollectorPublishesSpanCountForTablestoreRingsOnly(t *testing.T) {
	src := fakeSource{
		rings: []RingStat{
			{File: "test.db", Ring: "cpu60", Kind: "timestore", NSlots: 100, NAvail: 42},
			{File: "test.db", Ring: "hosts", Kind: "tablestore", NSlots: 50, NAvail: 10, NSpans: 3},
		},
	}

	c := NewCollector(src, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(SpanCount.WithLabelValues("test.db", "hosts")); got != 3 {
		t.Errorf("SpanCount(hosts) = %v, want 3", got)
	}
	if got := testutil.ToFloat64(SpanCount.WithLabelValues("test.db", "cpu60")); got != 0 {
		t.Errorf("SpanCount(cpu60) = %v, want 0 (not a tablestore ring)", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeSource{}, 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}

func TestObserveTxAndBusyRetry(t *testing.T) {
	before := testutil.ToFloat64(TxTotal.WithLabelValues("container", "ok"))
	ObserveTx("container", time.Now(), "ok")
	after := testutil.ToFloat64(TxTotal.WithLabelValues("container", "ok"))
	if after != before+1 {
		t.Errorf("TxTotal did not increment: before=%v after=%v", before, after)
	}

	beforeRetry := testutil.ToFloat64(TxBusyRetriesTotal.WithLabelValues("container"))
	IncBusyRetry("container")
	afterRetry := testutil.ToFloat64(TxBusyRetriesTotal.WithLabelValues("container"))
	if afterRetry != beforeRetry+1 {
		t.Errorf("TxBusyRetriesTotal did not increment: before=%v after=%v", beforeRetry, afterRetry)
	}
}
