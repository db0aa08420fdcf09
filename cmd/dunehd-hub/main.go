package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strefethen/dunehd-hub-go/internal/config"
	"github.com/strefethen/dunehd-hub-go/internal/server"
)

const shutdownGrace = 10 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("SYSTEM: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	handler, closeHub, err := server.NewHandler(cfg, server.Options{})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("SYSTEM: dunehd-hub listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = closeHub(context.Background())
			return err
		}
	case <-ctx.Done():
		log.Printf("SYSTEM: shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// HTTP first so no request races the players and the database closing.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("SYSTEM: http shutdown: %v", err)
	}
	return closeHub(shutdownCtx)
}
