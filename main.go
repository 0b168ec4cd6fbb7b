package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/board"
	"boardsync/client"
	"boardsync/internal/boardtest"
	"boardsync/workflow"
)

// The simulator wires the reconciliation engine against a board API and a
// push stream, either a real deployment or the embedded fake service, and
// keeps the board live with a periodic refetch.
func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	boardID := os.Getenv("BOARD_ID")
	if boardID == "" {
		boardID = "default"
	}

	apiURL := os.Getenv("BOARD_API_URL")
	token := os.Getenv("BOARD_API_TOKEN")
	var embedded *boardtest.Service
	if apiURL == "" {
		secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if secret == "" {
			secret = "boardsync-dev"
		}
		embedded = boardtest.New(secret, logger)
		embedded.Seed(demoStatuses(), demoTasks(), demoWorkflows())
		signed, err := embedded.SignToken("simulator")
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		token = signed

		listenAddr := ":8085"
		if val, ok := os.LookupEnv("BOARD_SIM_PORT"); ok {
			listenAddr = ":" + val
		}
		srv := &http.Server{Addr: listenAddr, Handler: embedded.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("embedded service: %v", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		apiURL = "http://127.0.0.1" + listenAddr
		logger.Infof("embedded board service listening on %s", listenAddr)
	}

	var rc *redis.Client
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		rc = redis.NewClient(redisOpts)
	}

	api := client.New(apiURL, client.StaticToken(token), logger)
	cache := workflow.NewCache(api, rc, envDur("WORKFLOW_CACHE_TTL", time.Hour))
	gate := workflow.NewGate(cache, logger)

	engine := board.New(board.Config{
		BoardID:        boardID,
		ConfirmTimeout: envDur("CONFIRM_TIMEOUT", board.DefaultConfirmTimeout),
	}, api, api, api, gate, logNotifier{logger}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Load(ctx); err != nil {
		log.Fatalf("load board: %v", err)
	}
	logger.Infof("board %s loaded: %d columns, %d tasks", boardID, len(engine.Statuses()), len(engine.Tasks()))

	sub := client.NewSubscriber(apiURL+"/stream", client.StaticToken(token), engine, logger)
	go func() {
		if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("subscriber stopped: %v", err)
		}
	}()

	if embedded != nil {
		go runScenario(ctx, engine, logger)
	}

	refetchEvery := envDur("REFETCH_INTERVAL", 30*time.Second)
	ticker := time.NewTicker(refetchEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			if err := engine.Refetch(ctx); err != nil {
				logger.Errorf("refetch: %v", err)
			}
		}
	}
}

// runScenario drags the first task of the first column into the second
// column, then reports the reconciled board once the move confirms.
func runScenario(ctx context.Context, engine *board.Engine, logger *log.Logger) {
	statuses := engine.Statuses()
	tasks := engine.Tasks()
	if len(statuses) < 2 || len(tasks) == 0 {
		logger.Warn("scenario skipped: board too small")
		return
	}
	subject := tasks[0]
	dest := statuses[1]

	if !engine.DragStart(subject.ID) {
		return
	}
	engine.DragOver(board.Hover{StatusID: dest.ID})
	engine.DragEnd(ctx, &board.Hover{StatusID: dest.ID})

	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			logger.Warnf("move of %s still unconfirmed", subject.ID)
			return
		case <-time.After(100 * time.Millisecond):
			if engine.PendingCount() == 0 {
				logger.Infof("move of %q to %q confirmed, board has %d tasks", subject.Title, dest.Name, len(engine.Tasks()))
				return
			}
		}
	}
}

type logNotifier struct {
	logger *log.Logger
}

func (n logNotifier) Notify(severity board.Severity, message string) {
	switch severity {
	case board.SeverityError:
		n.logger.Error(message)
	case board.SeverityWarning:
		n.logger.Warn(message)
	default:
		n.logger.Info(message)
	}
}

func envDur(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
