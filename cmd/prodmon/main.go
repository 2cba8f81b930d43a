package main

import (
	"context"
	"log"
	"os"
	"time"

	"api-prodmon/internal/barcode"
	"api-prodmon/internal/camera"
	"api-prodmon/internal/config"
	"api-prodmon/internal/db"
	"api-prodmon/internal/listeners"
	"api-prodmon/internal/models"

	"github.com/joho/godotenv"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(0)

	log.Println("")
	log.Println("    ██████╗░██████╗░░█████╗░██████╗░███╗░░░███╗░█████╗░███╗░░██╗")
	log.Println("    ██╔══██╗██╔══██╗██╔══██╗██╔══██╗████╗░████║██╔══██╗████╗░██║")
	log.Println("    ██████╔╝██████╔╝██║░░██║██║░░██║██╔████╔██║██║░░██║██╔██╗██║")
	log.Println("    ██╔═══╝░██╔══██╗██║░░██║██║░░██║██║╚██╔╝██║██║░░██║██║╚████║")
	log.Println("    ██║░░░░░██║░░██║╚█████╔╝██████╔╝██║░╚═╝░██║╚█████╔╝██║░╚███║")
	log.Println("    ╚═╝░░░░░╚═╝░░╚═╝░╚════╝░╚═════╝░╚═╝░░░░░╚═╝░╚════╝░╚═╝░░╚══╝")
	log.Println("")
	log.Println("Starting api-prodmon...")
	log.Println("")

	log.SetFlags(log.Ldate | log.Ltime)

	// 1. Load .env for the config file path.
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using defaults")
	}

	// 2. Load YAML configuration.
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("⚠️  Configuration not loaded (%v), using factory defaults", err)
		cfg = config.Default()
	} else {
		log.Printf("✅ Configuration loaded from: %s", configPath)
	}

	// 3. Connect to PostgreSQL. DB connectivity is the only process-fatal
	// startup condition.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	connectTimeout, _ := cfg.Database.Postgres.GetConnectTimeoutDuration()
	healthCheckInterval, _ := cfg.Database.Postgres.GetHealthcheckIntervalDuration()

	dbManager, err := db.NewManagerWithURL(
		ctx,
		cfg.Database.Postgres.URL,
		int32(cfg.Database.Postgres.MinConns),
		int32(cfg.Database.Postgres.MaxConns),
		connectTimeout,
		healthCheckInterval,
	)
	if err != nil {
		log.Fatalf("❌ Error initializing PostgreSQL: %v", err)
	}
	defer dbManager.Close()
	log.Println("✅ PostgreSQL connection pool ready")

	if err := dbManager.InitTables(ctx); err != nil {
		log.Fatalf("❌ Error initializing tables: %v", err)
	}
	log.Println("✅ Database tables verified")

	// 4. Session layer plus its background sweeper.
	sessions := db.NewSessions(dbManager, cfg.Session)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()
	go sessions.StartSweeper(sweeperCtx)
	log.Printf("✅ Session sweeper running (interval: %s)", cfg.Session.GetCleanupInterval())

	// 5. Chat server.
	registry := listeners.NewRegistry()
	chatServer := listeners.NewChatServer(cfg.Chat, cfg.Session.GetShortSession(), dbManager, sessions, registry)
	if err := chatServer.Start(); err != nil {
		log.Fatalf("❌ Error starting chat server: %v", err)
	}
	defer chatServer.Stop()

	// 6. Detection pipeline.
	catalog := barcode.NewCatalog(cfg.Products)
	log.Printf("✅ Product catalog loaded (%d registered barcodes)", len(cfg.Products))

	store := barcode.NewStore()
	decoder := barcode.NewZXingDecoder()
	images := barcode.NewImageStore(cfg.Detection.ImageDir, cfg.Detection.SaveImages)
	detections := db.NewDetections(dbManager, cfg.Detection.ImageDir)

	detector := barcode.NewDetector(cfg.Detection, catalog, decoder, store, images, detections, func(message []byte) {
		chatServer.BroadcastSystem(string(message))
	})

	// 7. Dashboard push channel.
	wsHub := listeners.NewWSHub()
	go wsHub.Run()
	detector.OnDetection = func(event models.DetectionEvent) {
		wsHub.PublishDetection(event)
	}

	// 8. Camera hub and HTTP frontend (blocking).
	hub := camera.NewHub(cfg.Stream.GetNoSignalAfter())
	frontend := listeners.NewHTTPFrontend(cfg, hub, detector, store, detections, sessions, registry, wsHub)

	log.Println("")
	log.Printf("🚀 api-prodmon ready (http: %s:%d, chat: %s:%d)",
		cfg.HTTP.Host, cfg.HTTP.Port, cfg.Chat.Host, cfg.Chat.Port)
	log.Println("")

	if err := frontend.Start(); err != nil {
		log.Fatalf("❌ HTTP frontend terminated: %v", err)
	}
}
