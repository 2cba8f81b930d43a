package barcode

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"api-prodmon/internal/config"
	"api-prodmon/internal/models"
)

// RecordSaver persists accepted detections. Failures are logged by the
// detector and never abort the frame.
type RecordSaver interface {
	SaveBarcodeDetection(ctx context.Context, barcode, productName string, confidence float64, imageFilename string, bbox *models.BoundingBox) error
}

// ImageSaver writes the annotated detection snapshot, returning the stored
// filename or "".
type ImageSaver interface {
	SaveDetectionImage(frame []byte, barcodeData string, bbox *models.BoundingBox, productName string) string
}

// BroadcastFunc fans a notification line out to the chat room.
type BroadcastFunc func(message []byte)

// Detector arbitrates barcode detection for inbound frames: rate gating,
// decoding, validation/scoring, registered-product preference, cooldown
// deduplication and the tie-break down to a single winner. One mutex spans
// the whole read-decide-commit sequence so two concurrent frames can never
// both win for the same cooldown key.
type Detector struct {
	catalog   Catalog
	decoder   Decoder
	store     *Store
	images    ImageSaver
	records   RecordSaver
	broadcast BroadcastFunc

	interval            time.Duration
	cooldown            time.Duration
	confidenceThreshold float64
	broadcastEnabled    bool

	// OnDetection, when set, receives every committed event. Invoked on a
	// separate goroutine so the hook cannot block the detection path.
	OnDetection func(models.DetectionEvent)

	mu            sync.Mutex
	lastAttempt   time.Time // rate gate: last frame that reached decode
	lastBarcode   string    // cooldown state
	lastBarcodeAt time.Time
	detectedTotal int64
	rejectedTotal int64

	now func() time.Time
}

// NewDetector wires the arbiter. images, records and broadcast may be nil;
// the corresponding side effect is then skipped.
func NewDetector(cfg config.DetectionConfig, catalog Catalog, decoder Decoder, store *Store, images ImageSaver, records RecordSaver, broadcast BroadcastFunc) *Detector {
	return &Detector{
		catalog:             catalog,
		decoder:             decoder,
		store:               store,
		images:              images,
		records:             records,
		broadcast:           broadcast,
		interval:            cfg.GetInterval(),
		cooldown:            cfg.GetCooldown(),
		confidenceThreshold: cfg.ConfidenceThreshold,
		broadcastEnabled:    cfg.BroadcastEnabled,
		now:                 time.Now,
	}
}

// Counts returns the monotonic accepted/rejected totals.
func (d *Detector) Counts() (detected, rejected int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detectedTotal, d.rejectedTotal
}

// ProcessFrame runs one arbitration pass over a raw JPEG frame and returns
// the committed detection events (at most one under the strict tie-break).
// Side-effect failures never surface to the caller.
func (d *Detector) ProcessFrame(frame []byte) []models.DetectionEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	// 1. Rate gate. Every frame that passes consumes the slot, whatever
	// the decode outcome.
	if !d.lastAttempt.IsZero() && now.Sub(d.lastAttempt) < d.interval {
		return nil
	}
	d.lastAttempt = now

	// 2. Decode (grayscale pass plus one enhancement retry inside).
	candidates, err := d.decoder.Decode(frame)
	if err != nil {
		log.Printf("[BALANCE] ❌ decode error: %v", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}
	log.Printf("[BALANCE] decoded %d barcode(s)", len(candidates))

	// 3-5. Deduplicate, classify, partition by catalog membership.
	seen := make(map[string]bool, len(candidates))
	var registered, unregistered []models.ScoredCandidate
	var rejected []models.RejectedBarcode

	for _, cand := range candidates {
		if seen[cand.Data] {
			continue
		}
		seen[cand.Data] = true

		ok, reason := Validate(cand.Data, d.catalog)
		if !ok {
			rejected = append(rejected, models.RejectedBarcode{BarcodeData: cand.Data, Reason: reason})
			continue
		}

		confidence := Score(cand)
		if confidence < d.confidenceThreshold {
			rejected = append(rejected, models.RejectedBarcode{
				BarcodeData: cand.Data,
				Reason:      fmt.Sprintf("낮은_신뢰도_%.1f%%", confidence),
			})
			continue
		}

		scored := models.ScoredCandidate{
			DecodedCandidate: cand,
			Validation:       models.ValidationResult{Accepted: true, Reason: reason},
			Confidence:       confidence,
		}
		if d.catalog.Contains(cand.Data) {
			registered = append(registered, scored)
		} else {
			unregistered = append(unregistered, scored)
		}
	}
	d.rejectedTotal += int64(len(rejected))

	// Registered detections always beat unregistered ones in the same frame.
	finalists := registered
	if len(finalists) == 0 {
		finalists = unregistered
	} else if len(unregistered) > 0 {
		log.Printf("[BALANCE] 🚫 ignoring %d unregistered candidate(s) (registered first)", len(unregistered))
	}

	// 6. Cooldown filter.
	survivors := finalists[:0:0]
	for _, cand := range finalists {
		if d.lastBarcode == cand.Data && now.Sub(d.lastBarcodeAt) < d.cooldown {
			continue
		}
		survivors = append(survivors, cand)
	}

	// 7. Tie-break: single highest confidence, stable so encounter order
	// wins on equal scores. One item passes the camera at a time on this
	// line, so multiple simultaneous products are deliberately collapsed.
	if len(survivors) > 1 {
		sort.SliceStable(survivors, func(i, j int) bool {
			return survivors[i].Confidence > survivors[j].Confidence
		})
		log.Printf("[BALANCE] 🎯 keeping highest confidence: %s", survivors[0].Data)
		survivors = survivors[:1]
	}

	// 8. Commit.
	detections := make([]models.DetectionEvent, 0, len(survivors))
	for _, winner := range survivors {
		productName := d.catalog.ProductName(winner.Data)
		bbox := computeBBox(winner.DecodedCandidate)

		var imageFilename string
		if d.images != nil {
			imageFilename = d.images.SaveDetectionImage(frame, winner.Data, bbox, productName)
		}
		if d.records != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := d.records.SaveBarcodeDetection(ctx, winner.Data, productName, winner.Confidence, imageFilename, bbox); err != nil {
				log.Printf("[BALANCE] ❌ DB save failed for %s: %v", winner.Data, err)
			}
			cancel()
		}

		event := models.DetectionEvent{
			BarcodeData:      winner.Data,
			BarcodeType:      winner.Symbology,
			ProductName:      productName,
			IsRegistered:     d.catalog.Contains(winner.Data),
			BBox:             bbox,
			Confidence:       winner.Confidence,
			Points:           winner.Polygon,
			Timestamp:        now,
			Source:           models.DetectionSourceServer,
			ValidationReason: winner.Validation.Reason,
			ImageFilename:    imageFilename,
		}
		detections = append(detections, event)

		d.lastBarcode = winner.Data
		d.lastBarcodeAt = now
		log.Printf("[BALANCE] 🎉 detected: %s → %s (%.1f%%)", winner.Data, productName, winner.Confidence)
	}
	d.detectedTotal += int64(len(detections))

	if len(detections) > 0 || len(rejected) > 0 {
		d.store.Append(buildSummary(now, detections, rejected))
	}

	if len(detections) > 0 {
		if d.broadcastEnabled && d.broadcast != nil {
			message := fmt.Sprintf("[%s] BALANCE > 🎯 %s 검출!", now.Format("15:04:05"), detections[0].ProductName)
			go d.broadcast([]byte(message))
		}
		if d.OnDetection != nil {
			for _, event := range detections {
				go d.OnDetection(event)
			}
		}
	}

	return detections
}

// computeBBox prefers a 4-point polygon min/max box, falls back to the
// decoder rect, and yields nil when neither carries geometry.
func computeBBox(cand models.DecodedCandidate) *models.BoundingBox {
	if len(cand.Polygon) >= 4 {
		minX, minY := cand.Polygon[0].X, cand.Polygon[0].Y
		maxX, maxY := minX, minY
		for _, p := range cand.Polygon[1:] {
			if p.X < minX {
				minX = p.X
			}
			if p.Y < minY {
				minY = p.Y
			}
			if p.X > maxX {
				maxX = p.X
			}
			if p.Y > maxY {
				maxY = p.Y
			}
		}
		return &models.BoundingBox{minX, minY, maxX, maxY}
	}

	if cand.Rect.Width > 0 || cand.Rect.Height > 0 {
		return &models.BoundingBox{
			cand.Rect.X,
			cand.Rect.Y,
			cand.Rect.X + cand.Rect.Width,
			cand.Rect.Y + cand.Rect.Height,
		}
	}
	return nil
}

func buildSummary(ts time.Time, detections []models.DetectionEvent, rejected []models.RejectedBarcode) models.FrameSummary {
	distribution := make(map[string]int, len(detections))
	for _, d := range detections {
		distribution[d.ProductName]++
	}

	sample := rejected
	if len(sample) > 3 {
		sample = sample[:3]
	}

	return models.FrameSummary{
		Timestamp:           ts,
		TotalCount:          len(detections),
		ProductDistribution: distribution,
		Detections:          detections,
		RejectedSample:      sample,
		RejectedCount:       len(rejected),
		Source:              models.DetectionSourceServer,
	}
}
