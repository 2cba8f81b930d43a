package camera

import (
	"bytes"
	"testing"
	"time"
)

func TestHubPublishAndLatest(t *testing.T) {
	h := NewHub(5 * time.Second)
	clock := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return clock }

	if frame, _, live := h.Latest(1); frame != nil || live {
		t.Fatalf("Latest on empty hub = (%v, live=%v)", frame, live)
	}

	h.Publish(1, []byte("frame-a"))
	frame, updatedAt, live := h.Latest(1)
	if !bytes.Equal(frame, []byte("frame-a")) || !live {
		t.Fatalf("Latest = (%q, live=%v)", frame, live)
	}
	if !updatedAt.Equal(clock) {
		t.Errorf("updatedAt = %v, want %v", updatedAt, clock)
	}

	// A newer frame replaces the old one.
	h.Publish(1, []byte("frame-b"))
	frame, _, _ = h.Latest(1)
	if !bytes.Equal(frame, []byte("frame-b")) {
		t.Errorf("Latest after second publish = %q", frame)
	}

	// Cameras are independent.
	if frame, _, live := h.Latest(2); frame != nil || live {
		t.Errorf("camera 2 leaked camera 1 state: (%v, %v)", frame, live)
	}
}

func TestHubStaleFrameNotLive(t *testing.T) {
	h := NewHub(5 * time.Second)
	clock := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return clock }

	h.Publish(1, []byte("frame"))

	clock = clock.Add(10 * time.Second)
	frame, _, live := h.Latest(1)
	if frame == nil {
		t.Fatal("stale frame should still be returned")
	}
	if live {
		t.Error("frame older than noSignalAfter must not be live")
	}
}

func TestHubTryAcquireSingleFlight(t *testing.T) {
	h := NewHub(5 * time.Second)

	if !h.TryAcquire(1) {
		t.Fatal("first TryAcquire should succeed")
	}
	if h.TryAcquire(1) {
		t.Fatal("second TryAcquire must fail while busy")
	}

	h.Release(1)
	if !h.TryAcquire(1) {
		t.Fatal("TryAcquire after Release should succeed")
	}

	// Another camera is not blocked.
	if !h.TryAcquire(2) {
		t.Fatal("camera 2 should acquire independently")
	}
}

func TestHubStatus(t *testing.T) {
	h := NewHub(5 * time.Second)
	clock := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return clock }

	h.Publish(2, []byte("f"))
	h.Publish(1, []byte("f"))
	h.Publish(1, []byte("f"))

	h.TryAcquire(1)
	h.TryAcquire(1) // dropped

	statuses := h.Status()
	if len(statuses) != 2 {
		t.Fatalf("Status = %d cameras, want 2", len(statuses))
	}
	// Sorted by camera id.
	if statuses[0].CameraID != 1 || statuses[1].CameraID != 2 {
		t.Fatalf("Status order = %d, %d", statuses[0].CameraID, statuses[1].CameraID)
	}

	cam1 := statuses[0]
	if cam1.FramesTotal != 2 {
		t.Errorf("camera 1 FramesTotal = %d, want 2", cam1.FramesTotal)
	}
	if cam1.FramesDropped != 1 {
		t.Errorf("camera 1 FramesDropped = %d, want 1", cam1.FramesDropped)
	}
	if !cam1.Connected {
		t.Error("camera 1 should be connected")
	}

	clock = clock.Add(time.Minute)
	statuses = h.Status()
	if statuses[0].Connected {
		t.Error("camera 1 should read disconnected after a minute of silence")
	}
}
