package barcode

import (
	"testing"
	"time"

	"api-prodmon/internal/config"
	"api-prodmon/internal/models"
)

type stubDecoder struct {
	candidates []models.DecodedCandidate
	calls      int
}

func (s *stubDecoder) Decode(frame []byte) ([]models.DecodedCandidate, error) {
	s.calls++
	return s.candidates, nil
}

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		Interval:            "800ms",
		Cooldown:            "2500ms",
		ConfidenceThreshold: 60.0,
	}
}

func testCatalog() Catalog {
	return NewCatalog(map[string]string{
		"8804973304842": "스트로베리향",
		"8804973304835": "피치향",
	})
}

// centeredCandidate builds a candidate whose rect center sits exactly on
// (320, 240) with the given square side.
func centeredCandidate(data string, side int) models.DecodedCandidate {
	return models.DecodedCandidate{
		Data:      data,
		Symbology: "EAN_13",
		Rect:      models.Rect{X: 320 - side/2, Y: 240 - side/2, Width: side, Height: side},
	}
}

func newTestDetector(decoder *stubDecoder) (*Detector, *Store, *time.Time) {
	store := NewStore()
	d := NewDetector(testDetectionConfig(), testCatalog(), decoder, store, nil, nil, nil)

	clock := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }
	return d, store, &clock
}

func TestProcessFrameEndToEnd(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("8804973304842", 50),
	}}
	d, store, _ := newTestDetector(decoder)

	events := d.ProcessFrame([]byte("jpeg"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.BarcodeData != "8804973304842" {
		t.Errorf("BarcodeData = %q", ev.BarcodeData)
	}
	if ev.ProductName != "스트로베리향" {
		t.Errorf("ProductName = %q", ev.ProductName)
	}
	if !ev.IsRegistered {
		t.Error("IsRegistered = false")
	}
	if ev.ValidationReason != ReasonRegistered {
		t.Errorf("ValidationReason = %q", ev.ValidationReason)
	}
	if ev.Confidence < 94.9 || ev.Confidence > 95.1 {
		t.Errorf("Confidence = %v, want ≈95.0", ev.Confidence)
	}
	if ev.Source != models.DetectionSourceServer {
		t.Errorf("Source = %q", ev.Source)
	}
	if ev.BBox == nil {
		t.Fatal("BBox = nil")
	}
	want := models.BoundingBox{295, 215, 345, 265}
	if *ev.BBox != want {
		t.Errorf("BBox = %v, want %v", *ev.BBox, want)
	}

	history := store.History(10)
	if len(history) != 1 || history[0].TotalCount != 1 {
		t.Fatalf("store history = %+v, want one summary with one detection", history)
	}
}

// Every frame that passes the rate gate consumes the slot, so a second
// frame inside the interval never reaches the decoder.
func TestProcessFrameRateGate(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("8804973304842", 50),
	}}
	d, _, clock := newTestDetector(decoder)

	if got := d.ProcessFrame(nil); len(got) != 1 {
		t.Fatalf("first frame: %d events, want 1", len(got))
	}

	*clock = clock.Add(500 * time.Millisecond)
	if got := d.ProcessFrame(nil); got != nil {
		t.Fatalf("gated frame produced events: %v", got)
	}
	if decoder.calls != 1 {
		t.Errorf("decoder called %d times, want 1 (second frame gated)", decoder.calls)
	}

	*clock = clock.Add(400 * time.Millisecond)
	d.ProcessFrame(nil)
	if decoder.calls != 2 {
		t.Errorf("decoder called %d times after interval elapsed, want 2", decoder.calls)
	}
}

func TestProcessFrameCooldown(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("8804973304842", 50),
	}}
	d, _, clock := newTestDetector(decoder)

	if got := d.ProcessFrame(nil); len(got) != 1 {
		t.Fatalf("first frame: %d events, want 1", len(got))
	}

	// Past the rate gate but inside the 2500ms cooldown: same barcode is
	// suppressed.
	*clock = clock.Add(1 * time.Second)
	if got := d.ProcessFrame(nil); len(got) != 0 {
		t.Fatalf("cooldown frame: %d events, want 0", len(got))
	}

	// Once the cooldown expires the same barcode wins again.
	*clock = clock.Add(2 * time.Second)
	if got := d.ProcessFrame(nil); len(got) != 1 {
		t.Fatalf("post-cooldown frame: %d events, want 1", len(got))
	}
}

func TestProcessFrameCooldownIsPerValue(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("8804973304842", 50),
	}}
	d, _, clock := newTestDetector(decoder)

	d.ProcessFrame(nil)

	// A different barcode is not affected by the first one's cooldown.
	decoder.candidates = []models.DecodedCandidate{centeredCandidate("8804973304835", 50)}
	*clock = clock.Add(1 * time.Second)
	if got := d.ProcessFrame(nil); len(got) != 1 {
		t.Fatalf("different barcode inside cooldown: %d events, want 1", len(got))
	}
}

// A registered and an unregistered candidate in the same frame: only the
// registered one survives, regardless of confidence.
func TestProcessFrameRegisteredPreference(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("4012345678901", 50), // unregistered, ≈95
		centeredCandidate("8804973304842", 20), // registered, lower confidence
	}}
	d, _, _ := newTestDetector(decoder)

	events := d.ProcessFrame(nil)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].BarcodeData != "8804973304842" {
		t.Errorf("winner = %q, want the registered candidate", events[0].BarcodeData)
	}
}

// Two candidates in the same partition collapse to the single highest
// confidence.
func TestProcessFrameTieBreak(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("8804973304835", 20), // ≈74
		centeredCandidate("8804973304842", 50), // ≈95
	}}
	d, _, _ := newTestDetector(decoder)

	events := d.ProcessFrame(nil)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].BarcodeData != "8804973304842" {
		t.Errorf("winner = %q, want the higher-confidence candidate", events[0].BarcodeData)
	}
}

// A frame containing only invalid candidates produces no events but the
// rejection is still observable through the store.
func TestProcessFrameRejectedSample(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("00000000000", 50),
	}}
	d, store, _ := newTestDetector(decoder)

	if got := d.ProcessFrame(nil); len(got) != 0 {
		t.Fatalf("got %d events, want 0", len(got))
	}

	history := store.History(10)
	if len(history) != 1 {
		t.Fatalf("store history has %d entries, want 1", len(history))
	}
	summary := history[0]
	if summary.TotalCount != 0 || summary.RejectedCount != 1 {
		t.Fatalf("summary = %+v, want 0 detections / 1 rejection", summary)
	}
	if len(summary.RejectedSample) != 1 ||
		summary.RejectedSample[0].BarcodeData != "00000000000" ||
		summary.RejectedSample[0].Reason != ReasonInvalidPattern {
		t.Errorf("rejected sample = %+v", summary.RejectedSample)
	}

	_, rejected := d.Counts()
	if rejected != 1 {
		t.Errorf("rejected count = %d, want 1", rejected)
	}
}

func TestProcessFrameLowConfidenceRejected(t *testing.T) {
	// A tiny barcode far from center scores below the 60.0 threshold.
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		{Data: "4012345678901", Rect: models.Rect{X: 600, Y: 440, Width: 10, Height: 10}},
	}}
	d, store, _ := newTestDetector(decoder)

	if got := d.ProcessFrame(nil); len(got) != 0 {
		t.Fatalf("got %d events, want 0", len(got))
	}

	history := store.History(10)
	if len(history) != 1 || len(history[0].RejectedSample) != 1 {
		t.Fatalf("store history = %+v", history)
	}
	reason := history[0].RejectedSample[0].Reason
	if len(reason) == 0 || reason == ReasonInvalidPattern {
		t.Errorf("reason = %q, want a low-confidence reason", reason)
	}
}

func TestProcessFrameDeduplicatesWithinFrame(t *testing.T) {
	decoder := &stubDecoder{candidates: []models.DecodedCandidate{
		centeredCandidate("8804973304842", 50),
		centeredCandidate("8804973304842", 50),
	}}
	d, _, _ := newTestDetector(decoder)

	events := d.ProcessFrame(nil)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	detected, _ := d.Counts()
	if detected != 1 {
		t.Errorf("detected count = %d, want 1", detected)
	}
}
