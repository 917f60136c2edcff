package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firebridge/internal/auth"
	"firebridge/internal/config"
	"firebridge/internal/firebase"
	"firebridge/internal/firestore"
	"firebridge/internal/handlers"
	apihttp "firebridge/internal/http"
	"firebridge/internal/logger"
	"firebridge/internal/storage"
	"firebridge/internal/store"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "text").WithError(err).Fatal("config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	clients, err := firebase.NewClients(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("firebase clients init failed")
	}
	defer clients.Close()

	objects := storage.New(clients.Storage, clients.Bucket,
		storage.WithLogger(log),
		storage.WithChunkSize(cfg.UploadChunkSize),
		storage.WithDownloadURLCacheSize(cfg.DownloadURLCacheSize),
		storage.WithEmulatorHost(cfg.StorageEmulatorHost),
		storage.WithIAMSigner(clients.IAM, cfg.SignedURLServiceAccountEmail),
	)
	fs := firestore.New(clients.Firestore,
		firestore.WithLogger(log),
		firestore.WithMaxAttempts(cfg.TransactionMaxAttempts),
	)
	verifier := auth.NewVerifier(clients.Auth, log)

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Cfg:      cfg,
		Log:      log,
		Verifier: verifier,
		Objects:  handlers.NewStorageBackend(objects),
		History:  store.NewUploadLog(fs, log),
		Claims:   verifier,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No read or write timeout: uploads stream for as long as the body lasts.
	}

	// graceful shutdown
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "project": cfg.ProjectID, "bucket": clients.Bucket}).Info("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen failed")
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("shutting down...")
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Warn("shutdown did not finish cleanly")
	}
}
