package server

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	handle := func(pattern string, h http.HandlerFunc) {
		s.mux.HandleFunc(pattern, s.corsMiddleware(s.rateLimitMiddleware(h)))
	}

	handle("/api/element-types", s.handleElementTypes)        // GET/POST
	handle("/api/element-types/{id}", s.handleElementType)    // GET/PUT/DELETE
	handle("/api/relationship-rules", s.handleRelRules)       // GET/POST
	handle("/api/relationship-rules/{id}", s.handleRelRule)   // GET/DELETE
	handle("/api/canvases", s.handleCanvases)                 // GET/POST
	handle("/api/canvases/{id}", s.handleCanvas)              // GET/PUT/DELETE
	handle("/api/canvases/{id}/instances", s.handleInstances) // GET/POST
	handle("/api/canvases/{id}/relationships", s.handleRelationships)
	handle("/api/instances/{id}", s.handleInstance) // GET/PUT/DELETE
	handle("/api/instances/{id}/properties", s.handleProperties)
	handle("/api/relationships/{id}", s.handleRelationship) // GET/DELETE
	handle("/api/properties/{id}", s.handleProperty)        // DELETE

	handle("/api/design-rules", s.handleDesignRules)         // GET/POST
	handle("/api/design-rules/{id}", s.handleDesignRule)     // GET/PUT/DELETE
	handle("/api/design-rules/{id}/evaluate", s.handleEvaluateRule)
	handle("/api/design-rules/evaluate-all", s.handleEvaluateAll)
	handle("/api/violations", s.handleViolations)

	handle("/api/impact/traverse", s.handleTraverse)
	handle("/api/impact/materialize", s.handleMaterialize)

	handle("/api/audit", s.handleAudit)
	handle("/api/stats", s.handleStats)
	handle("/health", s.handleHealth)

	s.mux.HandleFunc("/ws", s.corsMiddleware(s.handleWebSocket))
}

// corsMiddleware adds CORS headers using the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// checkOrigin validates an Origin header against configured allowed origins.
// Prefix matching allows any port number.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// rateLimiters hands out one token bucket per client address.
type rateLimiters struct {
	mu       sync.Mutex
	perAddr  map[string]*rate.Limiter
	rps      float64
	burst    int
	disabled bool
}

func newRateLimiters(rps float64, burst int) *rateLimiters {
	return &rateLimiters{
		perAddr:  make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
		disabled: rps <= 0,
	}
}

func (rl *rateLimiters) allow(addr string) bool {
	if rl.disabled {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	rl.mu.Lock()
	limiter, ok := rl.perAddr[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.perAddr[host] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiters.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}
