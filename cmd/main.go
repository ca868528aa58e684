package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"sceneforge/internal/cache"
	"sceneforge/internal/models"
	"sceneforge/internal/s3"
	"sceneforge/internal/scene"
	"sceneforge/internal/server"
	"sceneforge/internal/storage"
)

func main() {
	cfg, err := models.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := storage.NewStorage(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer db.Close()

	payloads, err := s3.NewClient(
		cfg.PayloadStore.Endpoint,
		cfg.PayloadStore.AccessKey,
		cfg.PayloadStore.SecretKey,
		cfg.PayloadStore.Bucket,
		cfg.PayloadStore.UseSSL)
	if err != nil {
		log.Fatalf("failed to init payload store client: %v", err)
	}

	thumbs, err := s3.NewClient(
		cfg.ThumbnailStore.Endpoint,
		cfg.ThumbnailStore.AccessKey,
		cfg.ThumbnailStore.SecretKey,
		cfg.ThumbnailStore.Bucket,
		cfg.ThumbnailStore.UseSSL)
	if err != nil {
		log.Fatalf("failed to init thumbnail store client: %v", err)
	}

	c := cache.New(cfg.RedisAddr)
	scenes := scene.NewService(db, payloads, thumbs, c)

	srv := server.NewServer(cfg, db, scenes, thumbs, c)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down.")
}
