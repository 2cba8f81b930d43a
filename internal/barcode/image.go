package barcode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"api-prodmon/internal/models"
)

var annotationGreen = color.RGBA{G: 255, A: 255}

// ImageStore writes annotated snapshots of accepted detections. Every
// failure is logged and swallowed: image persistence is best-effort and
// must never abort the detection path.
type ImageStore struct {
	dir     string
	enabled bool
	quality int
	now     func() time.Time
}

func NewImageStore(dir string, enabled bool) *ImageStore {
	if enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("[IMAGE] ❌ cannot create image dir %s: %v", dir, err)
			enabled = false
		}
	}
	return &ImageStore{dir: dir, enabled: enabled, quality: 85, now: time.Now}
}

// Dir returns the directory snapshots are written to.
func (s *ImageStore) Dir() string {
	return s.dir
}

// SaveDetectionImage re-encodes the frame with the bounding box and labels
// drawn in, and returns the stored filename. Returns "" when disabled or on
// any failure.
func (s *ImageStore) SaveDetectionImage(frame []byte, barcodeData string, bbox *models.BoundingBox, productName string) string {
	if s == nil || !s.enabled {
		return ""
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		log.Printf("[IMAGE] ❌ frame decode failed: %v", err)
		return ""
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)

	if bbox != nil {
		drawBox(canvas, *bbox, 3)
		drawLabel(canvas, barcodeData, bbox[0], max(0, bbox[1]-30))
		drawLabel(canvas, productName, bbox[0], max(0, bbox[1]-10))
	}

	ts := s.now()
	filename := fmt.Sprintf("%s_%06d_%s.jpg", ts.Format("20060102_150405"), ts.Nanosecond()/1000, barcodeData)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: s.quality}); err != nil {
		log.Printf("[IMAGE] ❌ encode failed for %s: %v", filename, err)
		return ""
	}
	if err := os.WriteFile(filepath.Join(s.dir, filename), buf.Bytes(), 0o644); err != nil {
		log.Printf("[IMAGE] ❌ write failed for %s: %v", filename, err)
		return ""
	}

	log.Printf("[IMAGE] saved detection snapshot: %s", filename)
	return filename
}

func drawBox(canvas *image.RGBA, bbox models.BoundingBox, thickness int) {
	x1, y1, x2, y2 := bbox[0], bbox[1], bbox[2], bbox[3]
	for t := 0; t < thickness; t++ {
		for x := x1 - t; x <= x2+t; x++ {
			setPixel(canvas, x, y1-t)
			setPixel(canvas, x, y2+t)
		}
		for y := y1 - t; y <= y2+t; y++ {
			setPixel(canvas, x1-t, y)
			setPixel(canvas, x2+t, y)
		}
	}
}

func setPixel(canvas *image.RGBA, x, y int) {
	if image.Pt(x, y).In(canvas.Bounds()) {
		canvas.SetRGBA(x, y, annotationGreen)
	}
}

func drawLabel(canvas *image.RGBA, text string, x, y int) {
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(annotationGreen),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+basicfont.Face7x13.Ascent),
	}
	drawer.DrawString(text)
}
