package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestSlogLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(&buf, Warning)
	l.Log(Debug, "should not appear")
	if buf.Len() != 0 {
		t.Fatalf("debug line logged at Warning level: %q", buf.String())
	}
	l.Log(Error, "should appear", "band", 3)
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("error line missing from output: %q", buf.String())
	}
}

func TestSlogLogger_SetLevelRaisesThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(&buf, Error)
	l.Log(Info, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line logged at Error level: %q", buf.String())
	}
	l.SetLevel(Info)
	l.Log(Info, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("info line missing after SetLevel: %q", buf.String())
	}
}

func TestDiscard_NeverPanics(t *testing.T) {
	Discard.SetLevel(Debug)
	Discard.Log(Fatal, "anything", "k", "v")
}

func TestNewCorrelationID_Unique(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	if a == b {
		t.Fatalf("two correlation IDs collided: %q", a)
	}
	if a == "" {
		t.Fatal("correlation ID empty")
	}
}

func TestStats_RecordAndSnapshot(t *testing.T) {
	s := NewStats()
	s.RecordBand(true)
	s.RecordBand(false)
	s.RecordRun(0)
	s.RecordRun(0)
	s.RecordRun(5)
	s.RecordEscape()

	snap := s.Snapshot()
	if snap.BandsDecoded != 2 {
		t.Fatalf("BandsDecoded = %d, want 2", snap.BandsDecoded)
	}
	if snap.ZeroBandCount != 1 {
		t.Fatalf("ZeroBandCount = %d, want 1", snap.ZeroBandCount)
	}
	if snap.RunLengthCounts[0] != 2 {
		t.Fatalf("RunLengthCounts[0] = %d, want 2", snap.RunLengthCounts[0])
	}
	if snap.MaxRunLength != 5 {
		t.Fatalf("MaxRunLength = %d, want 5", snap.MaxRunLength)
	}
	if snap.EscapeCount != 1 {
		t.Fatalf("EscapeCount = %d, want 1", snap.EscapeCount)
	}
	if snap.CorrelationID == "" {
		t.Fatal("CorrelationID empty on snapshot")
	}
}

func TestStats_SnapshotIsIndependentCopy(t *testing.T) {
	s := NewStats()
	s.RecordRun(1)
	snap := s.Snapshot()
	s.RecordRun(1)
	if snap.RunLengthCounts[1] == s.RunLengthCounts[1] {
		t.Fatal("snapshot map aliases live map")
	}
}
