package barcode

import (
	"fmt"
	"testing"
	"time"

	"api-prodmon/internal/models"
)

func serverSummary(ts time.Time, product string, rejected int) models.FrameSummary {
	return models.FrameSummary{
		Timestamp:           ts,
		TotalCount:          1,
		ProductDistribution: map[string]int{product: 1},
		RejectedCount:       rejected,
		Source:              models.DetectionSourceServer,
	}
}

func TestStoreHistoryOrderAndLimit(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Append(serverSummary(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("p%d", i), 0))
	}

	history := s.History(3)
	if len(history) != 3 {
		t.Fatalf("History(3) returned %d entries", len(history))
	}
	// Oldest first, covering the newest three appends.
	if history[0].ProductDistribution["p2"] != 1 || history[2].ProductDistribution["p4"] != 1 {
		t.Errorf("History(3) window wrong: %+v", history)
	}

	if got := s.History(1000); len(got) != 5 {
		t.Errorf("History(1000) = %d entries, want all 5", len(got))
	}
	if got := s.History(-1); len(got) != 0 {
		t.Errorf("History(-1) = %d entries, want 0", len(got))
	}
}

func TestStoreRingEviction(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	for i := 0; i < storeCapacity+10; i++ {
		s.Append(serverSummary(base.Add(time.Duration(i)*time.Millisecond), fmt.Sprintf("p%d", i), 0))
	}

	history := s.History(historyMaxLimit)
	if len(history) != historyMaxLimit {
		t.Fatalf("History = %d entries, want %d", len(history), historyMaxLimit)
	}
	// The newest entry must have survived eviction.
	last := history[len(history)-1]
	wantLast := fmt.Sprintf("p%d", storeCapacity+9)
	if last.ProductDistribution[wantLast] != 1 {
		t.Errorf("newest entry missing after eviction: %+v", last.ProductDistribution)
	}
}

// After the ring wraps, the retained entries must still come back in
// append order with exactly the oldest ones evicted.
func TestStoreOrderAfterWraparound(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base.Add(time.Second) }

	for i := 0; i < storeCapacity+10; i++ {
		s.Append(serverSummary(base.Add(time.Duration(i)*time.Millisecond), fmt.Sprintf("p%d", i), 0))
	}

	all := s.Recent(time.Hour)
	if len(all) != storeCapacity {
		t.Fatalf("Recent = %d entries, want %d", len(all), storeCapacity)
	}
	if all[0].ProductDistribution["p10"] != 1 {
		t.Errorf("oldest retained entry = %+v, want p10", all[0].ProductDistribution)
	}
	if all[storeCapacity-1].ProductDistribution[fmt.Sprintf("p%d", storeCapacity+9)] != 1 {
		t.Errorf("newest entry out of order: %+v", all[storeCapacity-1].ProductDistribution)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

func TestStoreStatsWindows(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Append(serverSummary(now.Add(-5*time.Minute), "스트로베리향", 2)) // both windows
	s.Append(serverSummary(now.Add(-30*time.Minute), "피치향", 0))   // 1h only
	s.Append(serverSummary(now.Add(-2*time.Hour), "스피어민트향", 0))   // neither

	stats := s.Stats()

	if stats.Recent10Min.Events != 1 || stats.Recent10Min.Total != 1 || stats.Recent10Min.Rejected != 2 {
		t.Errorf("Recent10Min = %+v", stats.Recent10Min)
	}
	if stats.Recent10Min.ServerDetections != 1 || stats.Recent10Min.ExternalDetections != 0 {
		t.Errorf("Recent10Min source split = %+v", stats.Recent10Min)
	}

	if stats.Recent1Hour.Events != 2 || stats.Recent1Hour.Total != 2 {
		t.Errorf("Recent1Hour = %+v", stats.Recent1Hour)
	}
	if stats.Recent1Hour.ProductDistribution["피치향"] != 1 {
		t.Errorf("Recent1Hour distribution = %+v", stats.Recent1Hour.ProductDistribution)
	}
	if stats.Recent1Hour.ProductDistribution["스피어민트향"] != 0 {
		t.Errorf("expired entry leaked into 1h window: %+v", stats.Recent1Hour.ProductDistribution)
	}
}

func TestStoreAddExternal(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.AddExternal(models.DetectionEvent{BarcodeData: "4012345678901"})

	history := s.History(10)
	if len(history) != 1 {
		t.Fatalf("history = %d entries, want 1", len(history))
	}
	entry := history[0]
	if entry.Source != "external" {
		t.Errorf("Source = %q, want external", entry.Source)
	}
	if !entry.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want defaulted to now", entry.Timestamp)
	}
	// Missing product name falls back to the barcode value.
	if entry.ProductDistribution["4012345678901"] != 1 {
		t.Errorf("ProductDistribution = %+v", entry.ProductDistribution)
	}

	stats := s.Stats()
	if stats.Recent10Min.ExternalDetections != 1 || stats.Recent10Min.ServerDetections != 0 {
		t.Errorf("external not counted as external: %+v", stats.Recent10Min)
	}
}

// An external source claiming the server's own source tag is reclassified
// so it cannot distort the server/external split.
func TestStoreAddExternalOverridesServerSource(t *testing.T) {
	s := NewStore()
	s.AddExternal(models.DetectionEvent{
		BarcodeData: "4012345678901",
		Source:      models.DetectionSourceServer,
		Timestamp:   time.Now(),
	})

	history := s.History(1)
	if len(history) != 1 || history[0].Source != "external" {
		t.Fatalf("history = %+v, want source external", history)
	}
}
