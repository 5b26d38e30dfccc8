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

	"github.com/joho/godotenv"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/handler"
	"github.com/parleyhq/parley/internal/provider"
	chatservice "github.com/parleyhq/parley/internal/service/chat"
	"github.com/parleyhq/parley/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer st.Close()
	log.Printf("conversation store ready backend=%s", cfg.Store.Backend)

	llm, err := provider.New(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("failed to initialize completion provider: %v", err)
	}
	log.Printf("completion provider ready name=%s model=%s", llm.Name(), llm.Model())

	svc := chatservice.NewService(st, llm, cfg.LLM.Timeout, cfg.LLM.HistoryLimit)
	router := handler.NewRouter(svc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Parley backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
