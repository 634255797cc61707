package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nautilus-server/cmd"
	"nautilus-server/internal/api"
	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"
	"nautilus-server/internal/config"
	"nautilus-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	log.Println("Starting enclave server...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	invoker, err := compute.NewInvoker(cfg.Computations, cfg.DefaultComputation, cfg.InvokerOptions())
	if err != nil {
		log.Fatalf("Failed to register computations: %v", err)
	}

	signer := cmd.CreateSigner(cfg.SigningScheme, cfg.SigningKeyHex)
	builder := attestation.NewBuilder(signer, attestation.ProcessData)
	processor := core.NewProcessor(invoker, builder, cfg.ComputeTimeout)

	ledger := cmd.CreateLedger(cfg.DatabaseURL)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	apiHandler := api.NewEnclaveService(processor, invoker, ledger)
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			// Closing the connections cancels the remaining request contexts,
			// which kills their computations.
			log.Printf("Server forced to shutdown: %v", err)
			server.Close() //nolint:errcheck
		}
	}()

	log.Printf("Enclave server listening on port %d with computations %v", cfg.Port, invoker.Computations())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	<-shutdownDone
	log.Println("Server stopped.")
}
