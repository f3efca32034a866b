// file: internal/gateway/server.go

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"fedgate/internal/federation"
	"fedgate/internal/logger"
	"fedgate/internal/metrics"
)

// Headers set on every published delivery
const (
	HeaderDeliveryID = "Fedgate-Delivery-Id"
	HeaderActor      = "Fedgate-Actor"
	HeaderOutcome    = "Fedgate-Outcome"
	HeaderInboxPath  = "Fedgate-Inbox-Path"
)

// Publisher publishes one NATS message. *broker.Publisher implements it.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) error
}

// deliveryJob is an authenticated delivery waiting to be published
type deliveryJob struct {
	id           string
	path         string
	activityType string
	actor        string
	outcome      string
	body         []byte
}

// InboundServer accepts federation deliveries on the inbox paths,
// authenticates them and publishes accepted activities to NATS. Publishing
// runs on a fixed-size worker pool so a slow NATS applies backpressure
// instead of piling up goroutines.
type InboundServer struct {
	logger     *logger.Logger
	metrics    *metrics.Metrics
	auth       *federation.Authenticator
	publisher  Publisher
	httpServer *http.Server
	serverCfg  *ServerConfig
	inboxCfg   *InboxConfig

	// Worker pool components. Handlers enqueue under mu's read lock and
	// Stop closes the queue under its write lock, so nothing sends on a
	// closed queue.
	workQueue     chan deliveryJob
	mu            sync.RWMutex
	closed        bool
	workerCtx     context.Context
	cancelWorkers context.CancelFunc
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address             string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	MaxHeaderBytes      int
	MaxBodyBytes        int64
	ShutdownGracePeriod time.Duration

	// Number of concurrent workers publishing accepted deliveries
	InboundWorkerCount int

	// Size of the buffered channel for accepted deliveries. It absorbs
	// bursts; when it is full the server answers 503.
	InboundQueueSize int
}

// InboxConfig describes the inbox endpoints
type InboxConfig struct {
	Paths         []string
	SubjectPrefix string
	GateEnabled   bool
	Mode          federation.ModeGate
}

// NewInboundServer creates a new inbox server with a worker pool
func NewInboundServer(
	logger *logger.Logger,
	metrics *metrics.Metrics,
	auth *federation.Authenticator,
	publisher Publisher,
	serverCfg *ServerConfig,
	inboxCfg *InboxConfig,
) *InboundServer {
	if serverCfg.InboundWorkerCount <= 0 {
		serverCfg.InboundWorkerCount = 10
		logger.Info("InboundWorkerCount not set, using default", "count", serverCfg.InboundWorkerCount)
	}
	if serverCfg.InboundQueueSize <= 0 {
		serverCfg.InboundQueueSize = 100
		logger.Info("InboundQueueSize not set, using default", "size", serverCfg.InboundQueueSize)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	return &InboundServer{
		logger:        logger,
		metrics:       metrics,
		auth:          auth,
		publisher:     publisher,
		serverCfg:     serverCfg,
		inboxCfg:      inboxCfg,
		workQueue:     make(chan deliveryJob, serverCfg.InboundQueueSize),
		workerCtx:     workerCtx,
		cancelWorkers: cancelWorkers,
	}
}

// Handler returns the routing for the inbox paths and health checks. Each
// inbox runs the deployment gate, then authentication, then enqueueing.
func (s *InboundServer) Handler() http.Handler {
	mux := http.NewServeMux()

	gate := federation.Gate(s.inboxCfg.GateEnabled, s.inboxCfg.Mode, s.logger, s.metrics)
	authenticate := federation.Middleware(s.auth, s.serverCfg.MaxBodyBytes, s.logger)

	for _, path := range s.inboxCfg.Paths {
		inbox := gate(authenticate(s.inboxHandler(path)))
		mux.Handle("POST "+path, s.instrument(path, inbox))
		s.logger.Info("registered inbox handler", "path", path)
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/healthz", s.healthHandler)

	return mux
}

// Start begins the HTTP server and starts the worker pool. Cancelling ctx
// does not stop the workers; Stop drains them.
func (s *InboundServer) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:           s.serverCfg.Address,
		Handler:        s.Handler(),
		ReadTimeout:    s.serverCfg.ReadTimeout,
		WriteTimeout:   s.serverCfg.WriteTimeout,
		IdleTimeout:    s.serverCfg.IdleTimeout,
		MaxHeaderBytes: s.serverCfg.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.startWorkers()

	go func() {
		s.logger.Info("starting inbox server",
			"address", s.serverCfg.Address,
			"paths", s.inboxCfg.Paths,
			"workers", s.serverCfg.InboundWorkerCount,
			"queueSize", s.serverCfg.InboundQueueSize)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// startWorkers launches the fixed pool of goroutines. Workers run until the
// queue is closed and drained.
func (s *InboundServer) startWorkers() {
	for i := 0; i < s.serverCfg.InboundWorkerCount; i++ {
		s.wg.Add(1)
		workerID := i + 1
		go func() {
			defer s.wg.Done()
			s.logger.Debug("starting inbound worker", "workerID", workerID)
			for job := range s.workQueue {
				s.metrics.SetInboundQueueDepth(float64(len(s.workQueue)))
				if err := s.workerCtx.Err(); err != nil {
					s.logger.Warn("dropping queued delivery after shutdown grace period",
						"deliveryId", job.id,
						"path", job.path)
					continue
				}
				s.publishDelivery(s.workerCtx, job)
			}
			s.logger.Debug("inbound worker stopped", "workerID", workerID)
		}()
	}
}

// enqueue hands job to the worker pool without blocking
func (s *InboundServer) enqueue(job deliveryJob) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStopping
	}
	select {
	case s.workQueue <- job:
		s.metrics.SetInboundQueueDepth(float64(len(s.workQueue)))
		return nil
	default:
		return errQueueFull
	}
}

var (
	errStopping  = errors.New("inbox server is stopping")
	errQueueFull = errors.New("inbound work queue is full")
)

// Stop shuts down the HTTP server, then lets the workers drain the queue.
// Deliveries still queued when ctx expires are dropped.
func (s *InboundServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping inbox server and workers")

	var shutdownErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to gracefully shutdown HTTP server", "error", err)
			shutdownErr = err
		}
	}

	s.stopOnce.Do(func() {
		s.logger.Info("closing work queue, waiting for workers to finish in-flight deliveries")
		s.mu.Lock()
		s.closed = true
		close(s.workQueue)
		s.mu.Unlock()
	})

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("shutdown grace period expired before the queue drained",
			"remaining", len(s.workQueue))
		s.cancelWorkers()
		<-drained
	}
	s.cancelWorkers()

	s.logger.Info("inbox server and all workers stopped")
	return shutdownErr
}

// inboxHandler enqueues an authenticated delivery. It answers 202 once the
// delivery is queued and 503 when the queue is full.
func (s *InboundServer) inboxHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := federation.RequestFromContext(r.Context())
		if !ok {
			s.logger.Error("inbox handler reached without authentication", "path", path)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		v, _ := federation.VerificationFromContext(r.Context())

		job := deliveryJob{
			id:      uuid.NewString(),
			path:    path,
			outcome: v.Outcome.String(),
			body:    req.Body,
		}
		if req.Activity != nil {
			job.activityType = req.Activity.Type
		}
		if actor, ok := federation.ActorFromContext(r.Context()); ok {
			job.actor = actor.ID
		}

		switch err := s.enqueue(job); {
		case err == nil:
			s.logger.Debug("delivery accepted",
				"deliveryId", job.id,
				"path", path,
				"type", job.activityType,
				"actor", job.actor,
				"state", v.Final())
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "id": job.id})
		case errors.Is(err, errStopping):
			s.logger.Warn("inbox server is stopping, rejecting delivery", "path", path)
			w.Header().Set("Retry-After", "5")
			http.Error(w, "Service Unavailable: server is shutting down.", http.StatusServiceUnavailable)
		default:
			s.logger.Warn("inbound work queue is full, rejecting delivery",
				"path", path,
				"queueSize", s.serverCfg.InboundQueueSize)
			w.Header().Set("Retry-After", "5")
			http.Error(w, "Service Unavailable: server is busy, please try again later.", http.StatusServiceUnavailable)
		}
	}
}

// publishDelivery publishes one accepted delivery to its activity subject
func (s *InboundServer) publishDelivery(ctx context.Context, job deliveryJob) {
	msg := nats.NewMsg(SubjectFor(s.inboxCfg.SubjectPrefix, job.activityType))
	msg.Data = job.body
	msg.Header.Set(nats.MsgIdHdr, job.id)
	msg.Header.Set(HeaderDeliveryID, job.id)
	msg.Header.Set(HeaderOutcome, job.outcome)
	msg.Header.Set(HeaderInboxPath, job.path)
	msg.Header.Set("Content-Type", "application/activity+json")
	if job.actor != "" {
		msg.Header.Set(HeaderActor, job.actor)
	}

	if err := s.publisher.PublishMsg(ctx, msg); err != nil {
		s.logger.Error("failed to publish delivery to NATS",
			"deliveryId", job.id,
			"subject", msg.Subject,
			"error", err)
		return
	}

	s.logger.Debug("published delivery to NATS",
		"deliveryId", job.id,
		"subject", msg.Subject)
}

// SubjectFor maps an activity type onto a subject under prefix. The type
// is lowercased and characters NATS treats specially are replaced.
func SubjectFor(prefix, activityType string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, strings.ToLower(strings.TrimSpace(activityType)))
	if token == "" {
		token = "unknown"
	}
	return prefix + "." + token
}

// instrument records request count and duration for an inbox path
func (s *InboundServer) instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.metrics.IncHTTPInboundRequestsTotal(path, r.Method, strconv.Itoa(rec.status))
		s.metrics.ObserveHTTPRequestDuration(path, r.Method, time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

// healthHandler responds to health check requests
func (s *InboundServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
