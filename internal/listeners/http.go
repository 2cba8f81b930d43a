package listeners

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"api-prodmon/internal/barcode"
	"api-prodmon/internal/camera"
	"api-prodmon/internal/config"
	"api-prodmon/internal/db"
	"api-prodmon/internal/models"
)

// HTTPFrontend hosts the frame-ingestion endpoints, the MJPEG streams and
// the dashboard API.
type HTTPFrontend struct {
	router     *gin.Engine
	addr       string
	hub        *camera.Hub
	detector   *barcode.Detector
	store      *barcode.Store
	detections *db.Detections
	sessions   *db.Sessions
	registry   *Registry
	wsHub      *WSHub

	detectionCfg config.DetectionConfig
	maxFPS       int
	imageDir     string
	startedAt    time.Time

	uploadStats [2]uploadCounter
}

// uploadCounter keeps the per-camera ingestion counters behind the 5s log.
type uploadCounter struct {
	mu        sync.Mutex
	frames    int
	lastLog   time.Time
	windowLog time.Time
}

func NewHTTPFrontend(cfg *config.Config, hub *camera.Hub, detector *barcode.Detector, store *barcode.Store, detections *db.Detections, sessions *db.Sessions, registry *Registry, wsHub *WSHub) *HTTPFrontend {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.NoRoute(func(c *gin.Context) {
		RespondWithError(c, http.StatusNotFound, ErrCodeNotFound,
			"🤔 The requested route does not exist on this server",
			gin.H{
				"available_endpoints": gin.H{
					"ingestion": []string{
						"POST /upload_frame_1",
						"POST /upload_frame_2",
					},
					"streaming": []string{
						"GET /video_feed_1",
						"GET /video_feed_2",
						"GET /latest_jpeg_1",
						"GET /latest_jpeg_2",
					},
					"detections": []string{
						"GET /api/barcode_stats",
						"GET /api/barcode_history",
						"GET /api/barcode_detections",
						"POST /api/external_barcode",
						"GET /barcode_images/:filename",
					},
					"sessions": []string{
						"GET /api/sessions/active",
						"GET /api/login_history",
						"GET /api/login_stats",
					},
					"misc": []string{
						"GET /health",
						"GET /stats",
						"GET /api/cameras",
						"GET /api/chat/clients",
						"GET /ws/detections",
					},
				},
			},
			"Check the endpoint list above or contact the development team")
	})

	f := &HTTPFrontend{
		router:       router,
		addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		hub:          hub,
		detector:     detector,
		store:        store,
		detections:   detections,
		sessions:     sessions,
		registry:     registry,
		wsHub:        wsHub,
		detectionCfg: cfg.Detection,
		maxFPS:       cfg.Stream.MaxFPS,
		imageDir:     cfg.Detection.ImageDir,
		startedAt:    time.Now(),
	}
	f.setupRoutes()
	return f
}

// Start blocks serving HTTP on the configured address.
func (f *HTTPFrontend) Start() error {
	log.Printf("✓ HTTP frontend listening on %s\n", f.addr)
	return f.router.Run(f.addr)
}

// Router exposes the gin engine, used by tests.
func (f *HTTPFrontend) Router() *gin.Engine {
	return f.router
}

func (f *HTTPFrontend) setupRoutes() {
	// Frame ingestion
	f.router.POST("/upload_frame", f.handleUploadFrame(1))
	f.router.POST("/upload_frame_1", f.handleUploadFrame(1))
	f.router.POST("/upload_frame_2", f.handleUploadFrame(2))

	// Streaming
	f.router.GET("/video_feed", f.handleVideoFeed(1))
	f.router.GET("/video_feed_1", f.handleVideoFeed(1))
	f.router.GET("/video_feed_2", f.handleVideoFeed(2))
	f.router.GET("/latest_jpeg", f.handleLatestJPEG(1))
	f.router.GET("/latest_jpeg_1", f.handleLatestJPEG(1))
	f.router.GET("/latest_jpeg_2", f.handleLatestJPEG(2))

	// Detections
	f.router.GET("/api/barcode_stats", f.handleBarcodeStats)
	f.router.GET("/barcode_stats", f.handleBarcodeStats)
	f.router.GET("/api/barcode_history", f.handleBarcodeHistory)
	f.router.POST("/api/external_barcode", f.handleExternalBarcode)
	f.router.GET("/api/barcode_detections", f.handleBarcodeDetections)
	f.router.GET("/barcode_images/:filename", f.handleBarcodeImage)

	// Sessions and audit
	f.router.GET("/api/sessions/active", f.handleActiveSessions)
	f.router.GET("/api/login_history", f.handleLoginHistory)
	f.router.GET("/api/login_stats", f.handleLoginStats)

	// Misc
	f.router.GET("/api/cameras", f.handleCameras)
	f.router.GET("/api/chat/clients", f.handleChatClients)
	f.router.GET("/health", f.handleHealth)
	f.router.GET("/stats", f.handleStats)

	// Dashboard push channel
	f.router.GET("/ws/detections", HandleDetectionsWS(f.wsHub))
}

// handleUploadFrame ingests one raw JPEG body. Camera 1 uploads also feed
// the detection pipeline; at most one detection pass runs per camera.
func (f *HTTPFrontend) handleUploadFrame(cameraID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil || len(data) == 0 {
			c.String(http.StatusBadRequest, "NoData")
			return
		}

		f.hub.Publish(cameraID, data)
		f.logUpload(cameraID, len(data))

		if cameraID == 1 {
			if f.hub.TryAcquire(cameraID) {
				go func() {
					defer f.hub.Release(cameraID)
					f.detector.ProcessFrame(data)
				}()
			}
		}

		c.String(http.StatusOK, "OK")
	}
}

// logUpload prints one ingestion line per camera every five seconds.
func (f *HTTPFrontend) logUpload(cameraID, size int) {
	if cameraID < 1 || cameraID > 2 {
		return
	}
	ctr := &f.uploadStats[cameraID-1]
	ctr.mu.Lock()
	defer ctr.mu.Unlock()

	now := time.Now()
	ctr.frames++
	if ctr.lastLog.IsZero() {
		ctr.lastLog = now
		ctr.windowLog = now
		return
	}
	if now.Sub(ctr.lastLog) >= 5*time.Second {
		elapsed := now.Sub(ctr.windowLog).Seconds()
		fps := 0.0
		if elapsed > 0 {
			fps = float64(ctr.frames) / elapsed
		}
		log.Printf("[📹 camera %d] receiving frames (size: %dB, fps: ~%.1f, window: %d)",
			cameraID, size, fps, ctr.frames)
		ctr.lastLog = now
		ctr.windowLog = now
		ctr.frames = 0
	}
}

// handleVideoFeed streams the camera as multipart MJPEG until the client
// goes away.
func (f *HTTPFrontend) handleVideoFeed(cameraID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")

		interval := time.Second / time.Duration(max(f.maxFPS, 1))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		ctx := c.Request.Context()
		w := c.Writer

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame, _, live := f.hub.Latest(cameraID)
				if !live {
					frame = noSignalFrame()
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
					return
				}
				if _, err := w.Write(frame); err != nil {
					return
				}
				if _, err := io.WriteString(w, "\r\n"); err != nil {
					return
				}
				w.Flush()
			}
		}
	}
}

func (f *HTTPFrontend) handleLatestJPEG(cameraID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		frame, _, live := f.hub.Latest(cameraID)
		if !live {
			frame = noSignalFrame()
		}
		c.Data(http.StatusOK, "image/jpeg", frame)
	}
}

func (f *HTTPFrontend) handleBarcodeStats(c *gin.Context) {
	c.JSON(http.StatusOK, f.store.Stats())
}

func (f *HTTPFrontend) handleBarcodeHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	history := f.store.History(limit)
	c.JSON(http.StatusOK, gin.H{
		"count":   len(history),
		"history": history,
	})
}

func (f *HTTPFrontend) handleExternalBarcode(c *gin.Context) {
	var event models.DetectionEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		ValidationError(c, "body", "expected a detection event JSON object")
		return
	}
	if event.BarcodeData == "" {
		ValidationError(c, "barcode_data", "barcode_data is required")
		return
	}

	f.store.AddExternal(event)
	f.wsHub.PublishDetection(event)

	Created(c, gin.H{"barcode_data": event.BarcodeData}, "external barcode recorded")
}

func (f *HTTPFrontend) handleBarcodeDetections(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	barcodeFilter := c.Query("barcode")

	records, err := f.detections.Recent(c.Request.Context(), limit, barcodeFilter)
	if err != nil {
		DatabaseError(c, "barcode_detections", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      len(records),
		"detections": records,
	})
}

// handleBarcodeImage serves a saved detection image. The filename is
// reduced to its base name so the handler cannot walk out of the image dir.
func (f *HTTPFrontend) handleBarcodeImage(c *gin.Context) {
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == ".." || name == "/" {
		NotFound(c, "Image not found", gin.H{"filename": c.Param("filename")})
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(filepath.Join(f.imageDir, name))
}

func (f *HTTPFrontend) handleActiveSessions(c *gin.Context) {
	sessions, err := f.sessions.ActiveSessions(c.Request.Context())
	if err != nil {
		DatabaseError(c, "active_sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active_sessions": len(sessions),
		"sessions":        sessions,
	})
}

func (f *HTTPFrontend) handleLoginHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))

	filter := db.LoginHistoryFilter{
		EmpNo:  c.Query("emp_no"),
		Status: c.Query("status"),
		Days:   days,
		Limit:  limit,
	}

	history, err := f.sessions.LoginHistory(c.Request.Context(), filter)
	if err != nil {
		DatabaseError(c, "login_history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(history),
		"history": history,
	})
}

func (f *HTTPFrontend) handleLoginStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	c.JSON(http.StatusOK, f.sessions.LoginStatistics(c.Request.Context(), days))
}

func (f *HTTPFrontend) handleCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": f.hub.Status()})
}

func (f *HTTPFrontend) handleChatClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected_clients": f.registry.Count()})
}

func (f *HTTPFrontend) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleStats is the one-page operational snapshot the dashboard polls.
func (f *HTTPFrontend) handleStats(c *gin.Context) {
	detected, rejected := f.detector.Counts()
	stats := f.store.Stats()

	var frameAge float64 = -1
	var frameSize int
	if frame, updatedAt, _ := f.hub.Latest(1); frame != nil {
		frameAge = time.Since(updatedAt).Seconds()
		frameSize = len(frame)
	}

	c.JSON(http.StatusOK, gin.H{
		"last_frame_age_sec":        frameAge,
		"latest_frame_size":         frameSize,
		"max_stream_fps":            f.maxFPS,
		"active_sessions":           f.sessions.ActiveSessionCount(c.Request.Context()),
		"connected_clients":         f.registry.Count(),
		"ws_clients":                f.wsHub.ClientCount(),
		"recent_barcode_detections": stats.Recent10Min.Total,
		"recent_barcode_rejections": stats.Recent10Min.Rejected,
		"barcode_detection_events":  stats.Recent10Min.Events,
		"barcode_detection_source":  models.DetectionSourceServer,
		"barcode_detections_count":  detected,
		"rejected_barcodes_count":   rejected,
		"detection_interval_sec":    f.detectionCfg.GetInterval().Seconds(),
		"cooldown_sec":              f.detectionCfg.GetCooldown().Seconds(),
		"confidence_threshold":      f.detectionCfg.ConfidenceThreshold,
		"uptime_sec":                time.Since(f.startedAt).Seconds(),
	})
}

var (
	noSignalOnce  sync.Once
	noSignalBytes []byte
)

// noSignalFrame returns a dark placeholder JPEG served while a camera has
// no recent upload.
func noSignalFrame() []byte {
	noSignalOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 640, 480))
		gray := color.RGBA{R: 40, G: 40, B: 40, A: 255}
		for y := 0; y < 480; y++ {
			for x := 0; x < 640; x++ {
				img.Set(x, y, gray)
			}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
			noSignalBytes = nil
			return
		}
		noSignalBytes = buf.Bytes()
	})
	return noSignalBytes
}
