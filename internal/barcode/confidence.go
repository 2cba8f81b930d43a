package barcode

import "api-prodmon/internal/models"

// Reference frame geometry the cameras are calibrated for.
const (
	frameCenterX   = 320.0
	frameCenterY   = 240.0
	saturationArea = 3000.0
)

// fallbackConfidence is returned when geometry is missing or degenerate,
// so a bad decode never fails the whole pipeline.
const fallbackConfidence = 70.0

// Score computes a 0-100 confidence for a decoded candidate from its size,
// payload length and distance from the frame center.
func Score(c models.DecodedCandidate) float64 {
	if c.Rect.Width <= 0 || c.Rect.Height <= 0 {
		return fallbackConfidence
	}

	sizeScore := float64(c.Rect.Area()) / saturationArea
	if sizeScore > 1.0 {
		sizeScore = 1.0
	}

	dataLength := len(c.Data)
	lengthScore := 1.0
	if dataLength < 10 {
		lengthScore = float64(dataLength) / 10.0
	}

	centerX := float64(c.Rect.X) + float64(c.Rect.Width)/2
	centerY := float64(c.Rect.Y) + float64(c.Rect.Height)/2
	centerScore := 1.0 - (abs(centerX-frameCenterX)/frameCenterX+abs(centerY-frameCenterY)/frameCenterY)/2
	if centerScore < 0.3 {
		centerScore = 0.3
	}

	confidence := (sizeScore*0.3 + lengthScore*0.4 + centerScore*0.3) * 100
	if confidence > 100.0 {
		confidence = 100.0
	}
	return confidence
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
