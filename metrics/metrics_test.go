package metrics

import (
	"testing"
	"time"
)

func TestCountersAreCommutative(t *testing.T) {
	s := New()
	s.MemoryHits.Inc(1)
	s.MemoryHits.Inc(2)
	if got := s.Snapshot().MemoryHits; got != 3 {
		t.Fatalf("MemoryHits = %d, want 3", got)
	}
}

func TestRecordGetAndSet(t *testing.T) {
	s := New()
	s.RecordGet(10 * time.Millisecond)
	s.RecordGet(5 * time.Millisecond)
	s.RecordSet(time.Second)

	snap := s.Snapshot()
	if snap.GetCalls != 2 {
		t.Fatalf("GetCalls = %d, want 2", snap.GetCalls)
	}
	if snap.GetLatencyTotal != (15 * time.Millisecond).Nanoseconds() {
		t.Fatalf("GetLatencyTotal = %d, want %d", snap.GetLatencyTotal, (15 * time.Millisecond).Nanoseconds())
	}
	if snap.SetCalls != 1 {
		t.Fatalf("SetCalls = %d, want 1", snap.SetCalls)
	}
}

func TestRecordTrim(t *testing.T) {
	s := New()
	s.RecordTrim(3, 1500)
	s.RecordTrim(2, 500)

	snap := s.Snapshot()
	if snap.TrimsCount != 5 {
		t.Fatalf("TrimsCount = %d, want 5", snap.TrimsCount)
	}
	if snap.TrimsBytes != 2000 {
		t.Fatalf("TrimsBytes = %d, want 2000", snap.TrimsBytes)
	}
}

func TestSnapshotIsImmutableCapture(t *testing.T) {
	s := New()
	s.MemoryHits.Inc(1)
	snap := s.Snapshot()
	s.MemoryHits.Inc(1)

	if snap.MemoryHits != 1 {
		t.Fatalf("snapshot should not observe later increments, got %d", snap.MemoryHits)
	}
	if got := s.Snapshot().MemoryHits; got != 2 {
		t.Fatalf("live counter should reflect later increments, got %d", got)
	}
}

func TestIndependentInstances(t *testing.T) {
	a := New()
	b := New()
	a.MemoryHits.Inc(5)

	if got := b.Snapshot().MemoryHits; got != 0 {
		t.Fatalf("second instance should be unaffected, got %d", got)
	}
}
