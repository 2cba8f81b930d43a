package models

import "time"

// CameraStatus reports the liveness of one camera feed.
type CameraStatus struct {
	CameraID      int        `json:"camera_id"`
	Connected     bool       `json:"connected"`
	LastFrame     *time.Time `json:"last_frame"`
	FramesTotal   int64      `json:"frames_total"`
	FramesDropped int64      `json:"frames_dropped"` // frames skipped by the in-flight guard
}
