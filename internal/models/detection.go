package models

import "time"

// DetectionSourceServer marks events produced by the in-process arbiter.
// Anything else in the Source field came in through the external API.
const DetectionSourceServer = "server_balanced"

// Point is a polygon vertex in frame coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is the axis-aligned rectangle reported by the decoder.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the rectangle surface in pixels.
func (r Rect) Area() int {
	return r.Width * r.Height
}

// BoundingBox is [x1, y1, x2, y2] as persisted and served to clients.
type BoundingBox [4]int

// DecodedCandidate is one raw symbol decoded from a frame. It lives for a
// single frame-processing pass.
type DecodedCandidate struct {
	Data      string  `json:"data"`
	Symbology string  `json:"symbology"`
	Polygon   []Point `json:"polygon,omitempty"`
	Rect      Rect    `json:"rect"`
}

// ValidationResult classifies a decoded payload.
type ValidationResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// ScoredCandidate is a syntactically valid candidate with its confidence.
// Confidence is only ever computed after validation accepted the payload.
type ScoredCandidate struct {
	DecodedCandidate
	Validation ValidationResult `json:"validation"`
	Confidence float64          `json:"confidence"`
}

// RejectedBarcode is the externally visible shape of a discarded candidate.
type RejectedBarcode struct {
	BarcodeData string `json:"barcode_data"`
	Reason      string `json:"reason"`
}

// DetectionEvent is the durable record of one accepted detection. It is
// written once and never mutated.
type DetectionEvent struct {
	BarcodeData      string       `json:"barcode_data"`
	BarcodeType      string       `json:"barcode_type"`
	ProductName      string       `json:"product_name"`
	IsRegistered     bool         `json:"is_registered"`
	BBox             *BoundingBox `json:"bbox"`
	Confidence       float64      `json:"confidence"`
	Points           []Point      `json:"points,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
	Source           string       `json:"detection_source"`
	ValidationReason string       `json:"validation_reason"`
	ImageFilename    string       `json:"image_filename,omitempty"`
}

// FrameSummary aggregates everything one processed frame produced. The
// detection store keeps a bounded ring of these.
type FrameSummary struct {
	Timestamp           time.Time         `json:"timestamp"`
	TotalCount          int               `json:"total_count"`
	ProductDistribution map[string]int    `json:"product_distribution"`
	Detections          []DetectionEvent  `json:"detections"`
	RejectedSample      []RejectedBarcode `json:"rejected_barcodes"`
	RejectedCount       int               `json:"rejected_count"`
	Source              string            `json:"detection_source"`
}

// WindowStats are the aggregated counters over one time window.
type WindowStats struct {
	Total               int            `json:"total"`
	Rejected            int            `json:"rejected"`
	ProductDistribution map[string]int `json:"product_distribution"`
	Events              int            `json:"events"`
	ServerDetections    int            `json:"server_detections"`
	ExternalDetections  int            `json:"external_detections"`
}

// BarcodeStats is the payload of GET /api/barcode_stats.
type BarcodeStats struct {
	Recent10Min WindowStats `json:"recent_10min"`
	Recent1Hour WindowStats `json:"recent_1hour"`
}

// DetectionRecord mirrors one row of barcode_detection_log.
type DetectionRecord struct {
	ID            int64        `json:"id"`
	Barcode       string       `json:"barcode"`
	ProductName   string       `json:"product_name"`
	Confidence    float64      `json:"confidence"`
	ImagePath     string       `json:"image_path"`
	ImageFilename string       `json:"image_filename"`
	DetectedAt    *time.Time   `json:"detected_at"`
	BBox          *BoundingBox `json:"bbox"`
}
