package barcode

import (
	"sync"
	"time"

	"api-prodmon/internal/models"
)

const (
	storeCapacity   = 500
	historyMaxLimit = 150
)

// Store is the bounded in-memory ring of recent frame summaries. All
// methods are safe for concurrent use; readers work on snapshots so the
// lock is never held across aggregation of anything but the copy itself.
// Eviction moves the head index instead of shifting entries, keeping
// Append O(1) regardless of capacity.
type Store struct {
	mu      sync.Mutex
	entries [storeCapacity]models.FrameSummary
	head    int
	size    int
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append adds a frame summary, evicting the oldest entry on overflow.
func (s *Store) Append(summary models.FrameSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[(s.head+s.size)%storeCapacity] = summary
	if s.size < storeCapacity {
		s.size++
	} else {
		s.head = (s.head + 1) % storeCapacity
	}
}

// snapshotLocked copies the ring in logical order, skipping the oldest
// entries when limit is smaller than the current size. Callers hold mu.
func (s *Store) snapshotLocked(limit int) []models.FrameSummary {
	if limit > s.size {
		limit = s.size
	}
	out := make([]models.FrameSummary, limit)
	start := s.head + s.size - limit
	for i := range out {
		out[i] = s.entries[(start+i)%storeCapacity]
	}
	return out
}

// AddExternal injects a detection from a non-core source into the shared
// history. Used by the external API for manual/test data.
func (s *Store) AddExternal(event models.DetectionEvent) {
	if event.Source == "" || event.Source == models.DetectionSourceServer {
		event.Source = "external"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if event.ProductName == "" {
		event.ProductName = event.BarcodeData
	}

	s.Append(models.FrameSummary{
		Timestamp:           event.Timestamp,
		TotalCount:          1,
		ProductDistribution: map[string]int{event.ProductName: 1},
		Detections:          []models.DetectionEvent{event},
		Source:              event.Source,
	})
}

// Recent returns the summaries newer than the given window.
func (s *Store) Recent(window time.Duration) []models.FrameSummary {
	cutoff := s.now().Add(-window)

	s.mu.Lock()
	snapshot := s.snapshotLocked(s.size)
	s.mu.Unlock()

	recent := make([]models.FrameSummary, 0, len(snapshot))
	for _, entry := range snapshot {
		if entry.Timestamp.After(cutoff) {
			recent = append(recent, entry)
		}
	}
	return recent
}

// History returns the last min(limit, 150) summaries, oldest first.
func (s *Store) History(limit int) []models.FrameSummary {
	if limit > historyMaxLimit {
		limit = historyMaxLimit
	}
	if limit < 0 {
		limit = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(limit)
}

// Stats aggregates the 10-minute and 1-hour windows.
func (s *Store) Stats() models.BarcodeStats {
	return models.BarcodeStats{
		Recent10Min: aggregate(s.Recent(10 * time.Minute)),
		Recent1Hour: aggregate(s.Recent(time.Hour)),
	}
}

func aggregate(entries []models.FrameSummary) models.WindowStats {
	stats := models.WindowStats{
		ProductDistribution: make(map[string]int),
		Events:              len(entries),
	}

	for _, entry := range entries {
		stats.Total += entry.TotalCount
		stats.Rejected += entry.RejectedCount
		for product, count := range entry.ProductDistribution {
			stats.ProductDistribution[product] += count
		}
		if entry.Source == models.DetectionSourceServer {
			stats.ServerDetections++
		}
	}
	stats.ExternalDetections = stats.Events - stats.ServerDetections
	return stats
}
