package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"picmark/gallery/internal/api"
	"picmark/gallery/internal/cache"
	"picmark/gallery/internal/config"
	"picmark/gallery/internal/logger"
	"picmark/gallery/internal/metrics"
	"picmark/gallery/internal/naming"
	"picmark/gallery/internal/repository/mongo"
	"picmark/gallery/internal/service"
	"picmark/gallery/internal/settings"
	"picmark/gallery/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// @title Picmark Gallery API
// @version 1.0
// @description Upload credentials, image metadata and storage lifecycle for the picmark gallery.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.New("info").WithError(err).Fatal("could not load config")
	}
	log := logger.New(cfg.Log.Level)
	log.Info("starting picmark gallery server")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.WithError(err).Fatal("could not connect to MongoDB")
	}
	defer func() {
		log.Info("disconnecting MongoDB")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.WithError(err).Error("failed to disconnect MongoDB")
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)

	if err := mongo.EnsureIndexes(ctx, appDB); err != nil {
		log.WithError(err).Fatal("could not create indexes")
	}

	// --- Settings cache (optional) ---
	var settingsCache cache.Cache
	if cfg.Redis.Address != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Warn("redis unavailable; settings are read from MongoDB on every request")
		} else {
			defer rdb.Close()
			settingsCache = cache.NewRedisCache(rdb)
		}
	}

	// --- Repositories ---
	userRepo := mongo.NewMongoUserRepository(appDB)
	imageRepo := mongo.NewMongoImageRepository(appDB)
	settingsProvider := settings.NewProvider(mongo.NewMongoSettingsRepository(appDB), settingsCache, cfg.Redis.TTL, log)

	// --- Storage ---
	m := metrics.New()

	regions, err := storage.RegistryFromConfig(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("invalid storage regions")
	}
	remover, err := storage.NewRemover(ctx, cfg.Storage, regions, log)
	if err != nil {
		log.WithError(err).Fatal("could not initialize object store client")
	}
	deleter := storage.NewDeletionCoordinator(remover, regions, cfg.Storage.Bucket, log, m)
	issuer := storage.NewCredentialIssuer(cfg.Storage.Bucket, cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, cfg.Storage.CredentialTTL)

	// --- Services ---
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.Auth.AdminEmails)
	imageService := service.NewImageService(
		naming.New(),
		issuer,
		service.NewUploadPolicy(settingsProvider),
		settingsProvider,
		deleter,
		imageRepo,
		service.ImageServiceConfig{Domain: cfg.Storage.Domain, DeleteTimeout: cfg.Storage.DeleteTimeout},
		log,
		m,
	)

	// --- HTTP ---
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Deps{
		Auth:     authService,
		Images:   imageService,
		Settings: settingsProvider,
		Metrics:  m,
		Log:      log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.Address).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("ListenAndServe error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exiting")
}
