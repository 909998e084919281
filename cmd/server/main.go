package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SaiyyedKaif/Connectify/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fmt.Println("Starting Connectify server...")

	// Load configuration from the environment
	config := server.NewConfigFromEnv()
	server.SetConfig(config)
	log.Printf("Environment: %s", config.Environment)

	// Create the hub that owns presence and broadcasting
	hub := server.NewHub()

	// Cross-process fanout is optional: without a reachable broker the
	// server keeps working with process-local broadcasts only.
	fanoutDone := make(chan struct{})
	fanout, err := server.NewFanout(config.RedisURL)
	if err != nil {
		close(fanoutDone)
		log.Printf("Redis unavailable, running in single-process mode: %v", err)
	} else {
		hub.AttachFanout(fanout)
		go func() {
			defer close(fanoutDone)
			fanout.Run(hub.Context(), hub.DeliverRemote)
		}()
		log.Println("Cross-process fanout enabled via Redis")
	}

	go hub.Run()

	// Setup routes and start the HTTP server
	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(config.Port, mux)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for a termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, shutting down gracefully...")

	// Stop accepting new connections, then close existing ones
	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown did not complete cleanly: %v", err)
	}

	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown did not complete cleanly: %v", err)
	}

	// Release the broker connection; in-flight publishes drain best-effort
	<-fanoutDone
	if fanout != nil {
		if err := fanout.Close(); err != nil {
			log.Printf("Error closing fanout: %v", err)
		}
	}

	log.Println("Server stopped")
}
