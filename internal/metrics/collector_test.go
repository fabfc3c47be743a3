package metrics

import (
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpStoreSave, 10*time.Millisecond)
	c.RecordTiming(OpStoreSave, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.StoreSave == nil {
		t.Fatal("expected store save stats")
	}
	if snap.StoreSave.Count != 2 {
		t.Errorf("Count = %d, want 2", snap.StoreSave.Count)
	}
	if snap.StoreSave.MinTimeMs != 10 || snap.StoreSave.MaxTimeMs != 30 {
		t.Errorf("Min/Max = %d/%d, want 10/30", snap.StoreSave.MinTimeMs, snap.StoreSave.MaxTimeMs)
	}
}

func TestRecordGeneration(t *testing.T) {
	c := NewCollector()
	c.RecordGeneration(OpChatStream, 100*time.Millisecond, 250)
	c.RecordGeneration(OpChatStream, 200*time.Millisecond, 750)

	snap := c.Snapshot()
	if snap.ChatStream == nil {
		t.Fatal("expected chat stream stats")
	}
	if snap.ChatStream.TotalOutputChars == nil || *snap.ChatStream.TotalOutputChars != 1000 {
		t.Errorf("TotalOutputChars = %v, want 1000", snap.ChatStream.TotalOutputChars)
	}
	if snap.ChatStream.AvgOutputChars == nil || *snap.ChatStream.AvgOutputChars != 500 {
		t.Errorf("AvgOutputChars = %v, want 500", snap.ChatStream.AvgOutputChars)
	}
}

func TestSnapshotEmptyOps(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()
	if snap.ChatStream != nil || snap.StoreSave != nil {
		t.Error("expected nil snapshots for unrecorded operations")
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpStoreSave, time.Millisecond)
	c.RecordGeneration(OpChatStream, time.Millisecond, 1)
	if snap := c.Snapshot(); snap.StoreSave != nil {
		t.Error("nil collector should report nothing")
	}
}
