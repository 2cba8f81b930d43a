package barcode

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"api-prodmon/internal/models"
)

// Decoder turns a raw JPEG frame into decoded barcode candidates. The
// detector only depends on this interface so tests can feed synthetic
// candidates without real image material.
type Decoder interface {
	Decode(frame []byte) ([]models.DecodedCandidate, error)
}

// ZXingDecoder decodes frames with the zxing port. Frames are converted to
// grayscale first; if nothing is found, one brightness/contrast enhancement
// pass is retried before giving up.
type ZXingDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

func NewZXingDecoder() *ZXingDecoder {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &ZXingDecoder{
		reader: oned.NewMultiFormatUPCEANReader(hints),
		hints:  hints,
	}
}

func (d *ZXingDecoder) Decode(frame []byte) ([]models.DecodedCandidate, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("barcode: frame decode failed: %w", err)
	}

	gray := toGray(img)
	candidates := d.scan(gray)
	if len(candidates) == 0 {
		candidates = d.scan(enhance(gray))
	}
	return candidates, nil
}

// scan runs the UPC/EAN reader over one image. Decode errors here just
// mean "no symbol"; they are not surfaced.
func (d *ZXingDecoder) scan(img image.Image) []models.DecodedCandidate {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil
	}

	result, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		return nil
	}

	polygon := make([]models.Point, 0, len(result.GetResultPoints()))
	for _, p := range result.GetResultPoints() {
		polygon = append(polygon, models.Point{X: int(p.GetX()), Y: int(p.GetY())})
	}

	return []models.DecodedCandidate{{
		Data:      result.GetText(),
		Symbology: result.GetBarcodeFormat().String(),
		Polygon:   polygon,
		Rect:      rectFromPoints(polygon),
	}}
}

// rectFromPoints derives the reported rect from the result points. A 1D
// read yields a zero-height rect; the scorer treats that as missing
// geometry and falls back instead of failing.
func rectFromPoints(points []models.Point) models.Rect {
	if len(points) == 0 {
		return models.Rect{}
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
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

	return models.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}

// enhance applies the retry pass: pixel' = 1.1*pixel + 10, clamped.
func enhance(gray *image.Gray) *image.Gray {
	out := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		scaled := int(float64(v)*1.1) + 10
		if scaled > 255 {
			scaled = 255
		}
		out.Pix[i] = uint8(scaled)
	}
	return out
}
