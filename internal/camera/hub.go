// Package camera keeps the latest frame per camera for the MJPEG streams
// and bounds detection work to one in-flight pass per camera.
package camera

import (
	"sort"
	"sync"
	"time"

	"api-prodmon/internal/models"
)

type cameraState struct {
	frame         []byte
	updatedAt     time.Time
	busy          bool
	framesTotal   int64
	framesDropped int64
}

// Hub is the shared frame cache. All methods are safe for concurrent use.
type Hub struct {
	mu            sync.RWMutex
	cams          map[int]*cameraState
	noSignalAfter time.Duration
	now           func() time.Time
}

func NewHub(noSignalAfter time.Duration) *Hub {
	return &Hub{
		cams:          make(map[int]*cameraState),
		noSignalAfter: noSignalAfter,
		now:           time.Now,
	}
}

// Publish stores the newest frame for a camera.
func (h *Hub) Publish(cameraID int, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.cams[cameraID]
	if state == nil {
		state = &cameraState{}
		h.cams[cameraID] = state
	}
	state.frame = frame
	state.updatedAt = h.now()
	state.framesTotal++
}

// Latest returns the current frame and whether the feed is live. A feed
// goes stale once no frame arrived within the no-signal window.
func (h *Hub) Latest(cameraID int) (frame []byte, updatedAt time.Time, live bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	state := h.cams[cameraID]
	if state == nil || state.frame == nil {
		return nil, time.Time{}, false
	}
	if h.now().Sub(state.updatedAt) > h.noSignalAfter {
		return state.frame, state.updatedAt, false
	}
	return state.frame, state.updatedAt, true
}

// TryAcquire claims the single detection slot of a camera. Frames arriving
// while a pass is already running are counted as dropped and must not
// start another decode. Release frees the slot.
func (h *Hub) TryAcquire(cameraID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.cams[cameraID]
	if state == nil {
		state = &cameraState{}
		h.cams[cameraID] = state
	}
	if state.busy {
		state.framesDropped++
		return false
	}
	state.busy = true
	return true
}

func (h *Hub) Release(cameraID int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if state := h.cams[cameraID]; state != nil {
		state.busy = false
	}
}

// Status reports liveness for every known camera.
func (h *Hub) Status() []models.CameraStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	statuses := make([]models.CameraStatus, 0, len(h.cams))
	for id, state := range h.cams {
		status := models.CameraStatus{
			CameraID:      id,
			FramesTotal:   state.framesTotal,
			FramesDropped: state.framesDropped,
		}
		if !state.updatedAt.IsZero() {
			ts := state.updatedAt
			status.LastFrame = &ts
			status.Connected = now.Sub(ts) <= h.noSignalAfter
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].CameraID < statuses[j].CameraID })
	return statuses
}
