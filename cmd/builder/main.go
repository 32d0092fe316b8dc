package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voxelbuild.ai/internal/config"
	"voxelbuild.ai/internal/dispatch"
	"voxelbuild.ai/internal/llm"
	"voxelbuild.ai/internal/materials"
	"voxelbuild.ai/internal/persistence/indexdb"
	"voxelbuild.ai/internal/persistence/journal"
	"voxelbuild.ai/internal/sanitize"
	"voxelbuild.ai/internal/session"
	"voxelbuild.ai/internal/translate"
	"voxelbuild.ai/internal/transport/dashboard"
)

func main() {
	var (
		configPath  = flag.String("config", "./configs/builder.yaml", "builder config path (empty for defaults)")
		dataDir     = flag.String("data", "", "runtime data directory (overrides config data_dir)")
		dashboardOn = flag.Bool("dashboard", true, "serve the status dashboard (when enabled in config)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite build index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[builder] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = strings.TrimSpace(*dataDir)
	}

	table, rejected := materials.NewTable(cfg.Materials)
	for _, k := range rejected {
		logger.Printf("config: material %q ignored", k)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sess := session.New(cfg.Session(), logger)
	sess.Start()
	defer sess.Close()

	model := llm.NewOllamaClient(cfg.LLM())
	tr := translate.New(model, sanitize.New(table, logger), cfg.Model.Timeout, logger)
	logger.Printf("model=%s url=%s world=%s", model.Model(), cfg.Model.URL, cfg.World.WSURL)

	jr := journal.New(filepath.Join(cfg.DataDir, "journal"))
	defer func() { _ = jr.Close() }()
	recorders := dispatch.MultiRecorder{jr}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "builder.sqlite"))
		if err != nil {
			logger.Printf("indexdb disabled: %v", err)
		} else {
			defer func() { _ = idx.Close() }()
			recorders = append(recorders, idx)
		}
	}

	hub := dashboard.NewHub(logger)
	hub.AllowRemote = cfg.Dashboard.AllowRemote

	queue := dispatch.NewQueue()
	var disp *dispatch.Dispatcher
	queue.OnChange(func(n int) {
		hub.Publish(n, disp.State().String())
	})
	disp = dispatch.New(cfg.Dispatch(), dispatch.Deps{
		Queue:      queue,
		World:      sess,
		Translator: tr,
		Materials:  table,
		Recorder:   recorders,
		Logger:     logger,
		OnStatus: func(n int, s dispatch.State) {
			hub.Publish(n, s.String())
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Run returns once "exit" has closed the queue and the backlog is
		// done; that stops everything else too.
		defer cancel()
		err := disp.Run(gctx)
		if errors.Is(err, dispatch.ErrQueueClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if *dashboardOn && cfg.Dashboard.Enabled {
		srv := &http.Server{
			Addr:              cfg.Dashboard.Addr,
			Handler:           dashboardMux(hub, idx, sess, logger, cfg.Dashboard.AllowRemote),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Printf("dashboard listening on %s", cfg.Dashboard.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
			return nil
		})
	} else {
		logger.Printf("dashboard disabled")
	}

	// Stdin cannot be interrupted, so the reader lives outside the group and
	// only closes the queue.
	go readRequests(os.Stdin, queue, logger)
	g.Go(func() error {
		<-gctx.Done()
		queue.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
	logger.Printf("bye")
}

// readRequests enqueues one request per non-empty line until EOF or "exit".
func readRequests(r io.Reader, q *dispatch.Queue, logger *log.Logger) {
	defer q.Close()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			logger.Printf("exit requested")
			return
		}
		req, err := q.Enqueue(line)
		if err != nil {
			return
		}
		logger.Printf("queued req=%s len=%d", req.ID, q.Len())
	}
	if err := sc.Err(); err != nil {
		logger.Printf("stdin: %v", err)
	}
}

func dashboardMux(hub *dashboard.Hub, idx *indexdb.SQLiteIndex, sess *session.Session, logger *log.Logger, allowRemote bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", hub.StatusHandler())
	mux.HandleFunc("/v1/dashboard/ws", hub.WSHandler())
	mux.HandleFunc("/v1/world", func(rw http.ResponseWriter, r *http.Request) {
		if !allowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(sess.Status())
	})
	mux.HandleFunc("/v1/builds/recent", func(rw http.ResponseWriter, r *http.Request) {
		if !allowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusServiceUnavailable)
			return
		}
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		outs, err := idx.RecentOutcomes(r.Context(), limit)
		if err != nil {
			logger.Printf("recent outcomes: %v", err)
			http.Error(rw, "query failed", http.StatusInternalServerError)
			return
		}
		counts, err := idx.CountByStatus(r.Context())
		if err != nil {
			logger.Printf("count builds: %v", err)
			http.Error(rw, "query failed", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			Outcomes []dispatch.Outcome           `json:"outcomes"`
			Counts   map[dispatch.BuildStatus]int `json:"counts"`
			Index    indexdb.Stats                `json:"index"`
		}{outs, counts, idx.Stats()})
	})
	return mux
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
