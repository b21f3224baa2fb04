package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/limits"
	"github.com/opd-ai/neochat/models"
)

// ServiceName and ServiceVersion are reported by GET /status.
const (
	ServiceName    = "NeoChat Relay"
	ServiceVersion = "1.1.0"
)

type queuedEnvelope struct {
	envelope Envelope
	expires  time.Time
}

// ServerOptions configures a reference relay.
type ServerOptions struct {
	// Registerer receives the relay metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
	// TunnelDomain is the base domain of the DNS tunnel ingress. Empty
	// means dnstunnel.DefaultBaseDomain.
	TunnelDomain string
}

// Server is an in-memory relay implementing the relay HTTP contract.
type Server struct {
	mu       sync.Mutex
	queues   map[string]map[string]queuedEnvelope
	profiles map[string]models.User
	now      func() time.Time
	router   *mux.Router
	metrics  *serverMetrics

	tunnelDomain string
	chunks       *dnstunnel.Reassembler
}

type serverMetrics struct {
	requests *prometheus.CounterVec
	queued   prometheus.Gauge
}

// NewServer creates a relay and its routes.
func NewServer(opts ServerOptions) (*Server, error) {
	s := &Server{
		queues:   make(map[string]map[string]queuedEnvelope),
		profiles: make(map[string]models.User),
		now:      opts.Now,

		tunnelDomain: opts.TunnelDomain,
		chunks:       dnstunnel.NewReassembler(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.tunnelDomain == "" {
		s.tunnelDomain = dnstunnel.DefaultBaseDomain
	}

	if opts.Registerer != nil {
		m := &serverMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "neochat",
				Subsystem: "relay",
				Name:      "requests_total",
				Help:      "Relay requests by route and status code.",
			}, []string{"route", "code"}),
			queued: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "neochat",
				Subsystem: "relay",
				Name:      "queued_envelopes",
				Help:      "Envelopes waiting to be polled.",
			}),
		}
		if err := opts.Registerer.Register(m.requests); err != nil {
			return nil, err
		}
		if err := opts.Registerer.Register(m.queued); err != nil {
			return nil, err
		}
		s.metrics = m
	}

	r := mux.NewRouter()
	r.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/poll/{hash}", s.handlePoll).Methods(http.MethodGet)
	r.HandleFunc("/ack/{hash}/{id}", s.handleAck).Methods(http.MethodDelete)
	r.HandleFunc("/profile", s.handleUpdateProfile).Methods(http.MethodPost)
	r.HandleFunc("/profile/{id}", s.handleGetProfile).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/dns/{name}", s.handleDNS).Methods(http.MethodGet)
	r.Use(s.logRequests)
	s.router = r

	return s, nil
}

// Handler returns the relay routes wrapped for cross-origin browser clients.
func (s *Server) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-NeoChat-ID"}),
	)(s.router)
}

// Prune removes expired envelopes and abandoned tunnel uploads, and returns
// how many envelopes were dropped.
func (s *Server) Prune() int {
	now := s.now()
	if n := s.chunks.Prune(now, TunnelUploadTTL); n > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "relay.Server.Prune",
			"uploads":  n,
		}).Info("Dropped incomplete tunnel uploads")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for hash, queue := range s.queues {
		for id, q := range queue {
			if now.After(q.expires) {
				delete(queue, id)
				dropped++
			}
		}
		if len(queue) == 0 {
			delete(s.queues, hash)
		}
	}
	s.updateQueuedLocked()
	return dropped
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if !decodeBody(w, r, &env) {
		return
	}
	if env.To == "" || env.Payload == "" || env.MessageID == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: to, payload, message_id")
		return
	}
	if env.From == "" {
		env.From = "anonymous"
	}

	s.mu.Lock()
	s.enqueueLocked(env, s.now())
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message_id": env.MessageID})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	if len(hash) < MinHashLength {
		writeError(w, http.StatusBadRequest, "Invalid user hash")
		return
	}

	s.mu.Lock()
	messages := s.pendingLocked(hash, s.now())
	if len(messages) > MaxPollMessages {
		messages = messages[:MaxPollMessages]
	}
	s.updateQueuedLocked()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, PollResponse{Messages: messages})
}

// enqueueLocked stamps env with now and stores it for its recipient,
// replacing an envelope with the same message ID.
func (s *Server) enqueueLocked(env Envelope, now time.Time) {
	env.Timestamp = uint64(now.Unix())
	queue, ok := s.queues[env.To]
	if !ok {
		queue = make(map[string]queuedEnvelope)
		s.queues[env.To] = queue
	}
	queue[env.MessageID] = queuedEnvelope{envelope: env, expires: now.Add(MessageTTL)}
	s.updateQueuedLocked()
}

// pendingLocked drops the expired envelopes queued for hash and returns the
// rest, oldest first with ties broken by message ID.
func (s *Server) pendingLocked(hash string, now time.Time) []Envelope {
	queue := s.queues[hash]
	pending := make([]Envelope, 0, len(queue))
	for id, q := range queue {
		if now.After(q.expires) {
			delete(queue, id)
			continue
		}
		pending = append(pending, q.envelope)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Timestamp != pending[j].Timestamp {
			return pending[i].Timestamp < pending[j].Timestamp
		}
		return pending[i].MessageID < pending[j].MessageID
	})
	return pending
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	if queue, ok := s.queues[vars["hash"]]; ok {
		delete(queue, vars["id"])
		if len(queue) == 0 {
			delete(s.queues, vars["hash"])
		}
	}
	s.updateQueuedLocked()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update ProfileUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	if update.ID == "" || update.Username == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: id, username")
		return
	}
	if update.Status == "" {
		update.Status = models.StatusOffline
	}

	profile := models.User{
		ID:        update.ID,
		Username:  update.Username,
		Status:    update.Status,
		AvatarURL: update.AvatarURL,
		LastSeen:  uint64(s.now().Unix()),
	}

	s.mu.Lock()
	s.profiles[update.ID] = profile
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "profile": profile})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	profile, ok := s.profiles[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:    "ok",
		Service:   ServiceName,
		Version:   ServiceVersion,
		Timestamp: s.now().UnixMilli(),
	})
}

func (s *Server) updateQueuedLocked() {
	if s.metrics == nil {
		return
	}
	total := 0
	for _, queue := range s.queues {
		total += len(queue)
	}
	s.metrics.queued.Set(float64(total))
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		}

		logrus.WithFields(logrus.Fields{
			"function": "relay.Server",
			"method":   r.Method,
			"route":    route,
			"status":   rec.code,
			"duration": time.Since(start).String(),
		}).Debug("Relay request served")
	})
}

// decodeBody reads a JSON request body of at most limits.MaxRequestBody
// bytes. It writes the error response itself and reports whether decoding
// succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, limits.MaxRequestBody)
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid json body")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "relay.writeJSON",
			"error":    err.Error(),
		}).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
