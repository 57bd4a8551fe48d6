// Package metrics implements the cache's counter/timer set: monotonic
// counters and latency sums that can be snapshotted into an immutable,
// JSON-reportable capture at any instant.
//
// The counters are backed by github.com/rcrowley/go-metrics, the same
// counter/gauge/registry API go-ethereum's own metrics package exposes
// (and long predates as an upstream dependency of the wider ecosystem).
package metrics

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Set is the cache's counter collection, matching spec field-for-field:
// memoryHits, memoryMisses, diskHits, diskMisses, readsBytes, writesBytes,
// trimsCount, trimsBytes, getCalls, getLatencyTotal, setCalls,
// setLatencyTotal.
type Set struct {
	registry gometrics.Registry

	MemoryHits      gometrics.Counter
	MemoryMisses    gometrics.Counter
	DiskHits        gometrics.Counter
	DiskMisses      gometrics.Counter
	ReadsBytes      gometrics.Counter
	WritesBytes     gometrics.Counter
	TrimsCount      gometrics.Counter
	TrimsBytes      gometrics.Counter
	GetCalls        gometrics.Counter
	GetLatencyTotal gometrics.Counter // nanoseconds
	SetCalls        gometrics.Counter
	SetLatencyTotal gometrics.Counter // nanoseconds
}

// New creates a fresh, independent counter set registered under its own
// private registry (so two cache instances in one process never collide).
func New() *Set {
	r := gometrics.NewRegistry()
	return &Set{
		registry:        r,
		MemoryHits:      gometrics.NewRegisteredCounter("memoryHits", r),
		MemoryMisses:    gometrics.NewRegisteredCounter("memoryMisses", r),
		DiskHits:        gometrics.NewRegisteredCounter("diskHits", r),
		DiskMisses:      gometrics.NewRegisteredCounter("diskMisses", r),
		ReadsBytes:      gometrics.NewRegisteredCounter("readsBytes", r),
		WritesBytes:     gometrics.NewRegisteredCounter("writesBytes", r),
		TrimsCount:      gometrics.NewRegisteredCounter("trimsCount", r),
		TrimsBytes:      gometrics.NewRegisteredCounter("trimsBytes", r),
		GetCalls:        gometrics.NewRegisteredCounter("getCalls", r),
		GetLatencyTotal: gometrics.NewRegisteredCounter("getLatencyTotal", r),
		SetCalls:        gometrics.NewRegisteredCounter("setCalls", r),
		SetLatencyTotal: gometrics.NewRegisteredCounter("setLatencyTotal", r),
	}
}

// RecordGet records one get() call's latency.
func (s *Set) RecordGet(d time.Duration) {
	s.GetCalls.Inc(1)
	s.GetLatencyTotal.Inc(d.Nanoseconds())
}

// RecordSet records one set() call's latency.
func (s *Set) RecordSet(d time.Duration) {
	s.SetCalls.Inc(1)
	s.SetLatencyTotal.Inc(d.Nanoseconds())
}

// RecordTrim records the outcome of one trim pass.
func (s *Set) RecordTrim(deletedCount, deletedBytes int64) {
	s.TrimsCount.Inc(deletedCount)
	s.TrimsBytes.Inc(deletedBytes)
}

// Snapshot is a JSON-reportable, immutable capture of every counter at one
// instant, mirroring the CacheReport/ReportJSON pattern used for cache
// introspection in the teacher's fee-market cache.
type Snapshot struct {
	MemoryHits      int64 `json:"memoryHits"`
	MemoryMisses    int64 `json:"memoryMisses"`
	DiskHits        int64 `json:"diskHits"`
	DiskMisses      int64 `json:"diskMisses"`
	ReadsBytes      int64 `json:"readsBytes"`
	WritesBytes     int64 `json:"writesBytes"`
	TrimsCount      int64 `json:"trimsCount"`
	TrimsBytes      int64 `json:"trimsBytes"`
	GetCalls        int64 `json:"getCalls"`
	GetLatencyTotal int64 `json:"getLatencyTotalNanos"`
	SetCalls        int64 `json:"setCalls"`
	SetLatencyTotal int64 `json:"setLatencyTotalNanos"`
}

// Snapshot captures every counter's current value. Each value is read with
// its own atomic load; the capture is not atomic across counters, so an
// increment made while Snapshot runs may show up in some fields and not in
// others.
func (s *Set) Snapshot() Snapshot {
	return Snapshot{
		MemoryHits:      s.MemoryHits.Snapshot().Count(),
		MemoryMisses:    s.MemoryMisses.Snapshot().Count(),
		DiskHits:        s.DiskHits.Snapshot().Count(),
		DiskMisses:      s.DiskMisses.Snapshot().Count(),
		ReadsBytes:      s.ReadsBytes.Snapshot().Count(),
		WritesBytes:     s.WritesBytes.Snapshot().Count(),
		TrimsCount:      s.TrimsCount.Snapshot().Count(),
		TrimsBytes:      s.TrimsBytes.Snapshot().Count(),
		GetCalls:        s.GetCalls.Snapshot().Count(),
		GetLatencyTotal: s.GetLatencyTotal.Snapshot().Count(),
		SetCalls:        s.SetCalls.Snapshot().Count(),
		SetLatencyTotal: s.SetLatencyTotal.Snapshot().Count(),
	}
}
