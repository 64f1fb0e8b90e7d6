package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/sproutcare/sprout-api/api"
	"github.com/sproutcare/sprout-api/config"
	"github.com/sproutcare/sprout-api/deps"
)

var (
	version = "v0.0.0"
)

func main() {
	cfg := config.New(version)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("unable to validate config: %s", err)
	}

	d, err := deps.New(cfg)
	if err != nil {
		log.Fatalf("Could not setup dependencies: %s", err)
	}

	// Start consuming change events so local caches track other replicas
	if err := d.ProcessorService.StartConsumers(); err != nil {
		log.Fatalf("unable to start processor consumers: %s", err)
	}

	// Create API server
	a, err := api.New(cfg, d, version)
	if err != nil {
		log.Fatalf("unable to create API instance: %s", err)
	}

	// Run API server in a goroutine so that we can allow signal listener to
	// block the main thread so it can orchestrate graceful shutdown.
	go func() {
		if err := a.Run(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				// Graceful API server shutdown
				return
			}

			log.Fatalf("API server run() failed: %s", err)
		}
	}()

	// Block until we get a signal, then cancel the shared shutdown context and
	// wait for the publisher to drain its in-flight messages.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("received signal '%s', shutting down", sig)

	d.ShutdownCancel()

	select {
	case <-d.PublisherShutdownDoneCh:
	case <-time.After(10 * time.Second):
		log.Println("timed out waiting for publisher shutdown")
	}
}
