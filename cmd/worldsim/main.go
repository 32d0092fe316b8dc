package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxelbuild.ai/internal/worldsim"
)

func main() {
	def := worldsim.DefaultConfig()
	var (
		addr     = flag.String("addr", ":8080", "http listen address")
		groundY  = flag.Int("ground", def.GroundY, "terrain surface height (first air block)")
		boundary = flag.Int("boundary", def.BoundaryR, "world boundary radius in blocks; GOTO beyond it fails")
		maxFill  = flag.Int("max_fill", def.MaxFillVolume, "largest /fill volume accepted")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[worldsim] ", log.LstdFlags|log.Lmicroseconds)

	cfg := def
	cfg.GroundY = *groundY
	cfg.BoundaryR = *boundary
	cfg.MaxFillVolume = *maxFill
	cfg.Spawn = [3]int{0, *groundY, 0}
	w := worldsim.New(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/state", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		chat := w.Chat()
		if len(chat) > 50 {
			chat = chat[len(chat)-50:]
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"ground_y": cfg.GroundY,
			"fills":    w.Fills(),
			"chat":     chat,
		})
	})
	mux.HandleFunc("/v1/ws", worldsim.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s ground=%d boundary=%d", *addr, cfg.GroundY, cfg.BoundaryR)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
