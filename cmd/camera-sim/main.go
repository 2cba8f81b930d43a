package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// Frames are rendered once per barcode and replayed, so the simulator can
// sustain high upload rates without re-encoding.
const (
	frameWidth  = 640
	frameHeight = 480
)

var registeredBarcodes = []string{
	"8804973304842",
	"8804973304835",
	"8804973304828",
	"8804973304811",
	"8804973308789",
	"8804973308802",
}

func main() {
	server := flag.String("server", "http://localhost:8000", "monitoring server base URL")
	cameraID := flag.Int("camera", 1, "camera id to simulate (1 or 2)")
	fps := flag.Int("fps", 5, "upload rate in frames per second")
	emptyPct := flag.Int("empty", 30, "percentage of frames without any barcode")
	flag.Parse()

	log.Printf("📡 Camera simulator → %s (camera %d, %d fps, %d%% empty frames)",
		*server, *cameraID, *fps, *emptyPct)

	frames, err := renderFrames()
	if err != nil {
		log.Fatalf("❌ Error rendering barcode frames: %v", err)
	}
	emptyFrame, err := renderEmptyFrame()
	if err != nil {
		log.Fatalf("❌ Error rendering empty frame: %v", err)
	}

	endpoint := fmt.Sprintf("%s/upload_frame_%d", *server, *cameraID)
	client := &http.Client{Timeout: 5 * time.Second}

	ticker := time.NewTicker(time.Second / time.Duration(max(*fps, 1)))
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sent := 0
	for {
		select {
		case <-sigChan:
			log.Println("")
			log.Printf("🛑 Stopping simulator (%d frames sent)", sent)
			return

		case <-ticker.C:
			frame := emptyFrame
			if rand.Intn(100) >= *emptyPct {
				frame = frames[rand.Intn(len(frames))]
			}

			resp, err := client.Post(endpoint, "image/jpeg", bytes.NewReader(frame))
			if err != nil {
				log.Printf("⚠️  Upload failed: %v", err)
				continue
			}
			resp.Body.Close()
			sent++

			if sent%50 == 0 {
				log.Printf("📹 %d frames uploaded", sent)
			}
		}
	}
}

// renderFrames produces one JPEG per registered barcode, the symbol
// centered on a white conveyor background.
func renderFrames() ([][]byte, error) {
	writer := oned.NewEAN13Writer()
	frames := make([][]byte, 0, len(registeredBarcodes))

	for _, code := range registeredBarcodes {
		matrix, err := writer.Encode(code, gozxing.BarcodeFormat_EAN_13, 320, 120, nil)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", code, err)
		}

		canvas := newBackground()
		offsetX := (frameWidth - matrix.GetWidth()) / 2
		offsetY := (frameHeight - matrix.GetHeight()) / 2
		for y := 0; y < matrix.GetHeight(); y++ {
			for x := 0; x < matrix.GetWidth(); x++ {
				if matrix.Get(x, y) {
					canvas.Set(offsetX+x, offsetY+y, color.Black)
				}
			}
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
			return nil, err
		}
		frames = append(frames, buf.Bytes())
	}
	return frames, nil
}

func renderEmptyFrame() ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, newBackground(), &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newBackground() *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return canvas
}
