package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	v1 "go_certhub/api/v1"
	"go_certhub/internal/auth"
	"go_certhub/internal/cache"
	"go_certhub/internal/config"
	"go_certhub/internal/db"
	"go_certhub/internal/designapi"
	"go_certhub/internal/issue"
	"go_certhub/internal/mail"
	"go_certhub/internal/qr"
	"go_certhub/internal/render"
	"go_certhub/internal/sharelink"
	"go_certhub/internal/storage"
	"go_certhub/internal/tempfiles"
	"go_certhub/internal/verification"
	"go_certhub/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	logger := logrus.NewEntry(logrus.StandardLogger())

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Println("✓ Database migrated")
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 4. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	// 5. Initialize Socket.IO server
	if err := ws.InitServer(); err != nil {
		log.Fatalf("Failed to initialize Socket.IO: %v", err)
	}

	// 6. Wire the certificate pipeline
	store, err := storage.NewDisk(cfg.Storage.PublicDir, cfg.Storage.PrivateDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	fonts := render.NewFontResolver(cfg.Fonts.Dir, logger)
	compositor := render.NewCompositor(store, fonts, logger)
	encoder := qr.NewEncoder(store, logger)

	var mailer mail.Mailer
	if cfg.SMTP.Enabled {
		mailer = mail.NewSMTPMailer(cfg.SMTP, logger)
	} else {
		mailer = mail.NewNopMailer(logger)
	}

	var design *designapi.Client
	if cfg.DesignAPI.Enabled {
		design = designapi.NewClient(cfg.DesignAPI, logger)
	}

	issueSvc := issue.NewService(
		db.GetDB(), store, encoder, compositor, mailer, design,
		cache.Client, ws.PublishCertificateEvent,
		cfg.PublicURL, cfg.RenderWorker.MaxAttempts, logger,
	)
	verificationSvc := verification.NewService(db.GetDB(), cache.Client, cfg.PublicURL, logger)
	shareStore := sharelink.NewStore(cache.Client)

	// 7. Start background workers
	worker := issue.NewWorker(issueSvc, cfg.RenderWorker, logger)
	worker.Start()
	defer worker.Stop()

	cleaner := tempfiles.NewCleaner(filepath.Join(cfg.Storage.PrivateDir, "tmp"), cfg.TempCleaner, logger)
	cleaner.Start()
	defer cleaner.Stop()

	// 8. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	v1.SetupRouter(r, v1.Deps{
		DB:           db.GetDB(),
		Config:       cfg,
		Store:        store,
		Issue:        issueSvc,
		Verification: verificationSvc,
		Worker:       worker,
		Share:        shareStore,
	})

	// Public artifacts (QR and final images) are served straight from disk
	r.Static("/storage", cfg.Storage.PublicDir)

	// Socket.IO with JWT handshake auth
	wsHandler := ws.WrapWithAuth(ws.Server)
	r.GET("/socket.io/*any", gin.WrapH(wsHandler))
	r.POST("/socket.io/*any", gin.WrapH(wsHandler))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
