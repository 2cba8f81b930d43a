package barcode

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// renderBarcodeFrame draws an EAN-13 symbol centered on a white 640x480
// canvas and returns it JPEG-encoded, mirroring what the camera simulator
// uploads.
func renderBarcodeFrame(t *testing.T, code string) []byte {
	t.Helper()

	matrix, err := oned.NewEAN13Writer().Encode(code, gozxing.BarcodeFormat_EAN_13, 320, 120, nil)
	if err != nil {
		t.Fatalf("encoding %s: %v", code, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	offsetX := (640 - matrix.GetWidth()) / 2
	offsetY := (480 - matrix.GetHeight()) / 2
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if matrix.Get(x, y) {
				canvas.Set(offsetX+x, offsetY+y, color.Black)
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	return buf.Bytes()
}

func TestZXingDecoderReadsEAN13(t *testing.T) {
	const code = "8804973304842"

	decoder := NewZXingDecoder()
	candidates, err := decoder.Decode(renderBarcodeFrame(t, code))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Data != code {
		t.Errorf("decoded %q, want %q", candidates[0].Data, code)
	}
	if !strings.Contains(candidates[0].Symbology, "EAN") {
		t.Errorf("symbology = %q, want an EAN format", candidates[0].Symbology)
	}
}

func TestZXingDecoderEmptyFrame(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding frame: %v", err)
	}

	decoder := NewZXingDecoder()
	candidates, err := decoder.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates on a blank frame, got %d", len(candidates))
	}
}

func TestZXingDecoderRejectsCorruptFrame(t *testing.T) {
	decoder := NewZXingDecoder()
	if _, err := decoder.Decode([]byte("not a jpeg")); err == nil {
		t.Error("expected an error for a corrupt frame")
	}
}
