package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"leadboard/internal/cache"
	"leadboard/internal/log"
)

// Limiter is a per-client token bucket. Idle clients expire from the table
// after IdleTTL.
type Limiter struct {
	mu      sync.Mutex
	clients *cache.LRUCache[*rate.Limiter]

	limit rate.Limit
	burst int

	requestsPerMinute int
	hits              prometheus.Counter
	logger            *log.Logger
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute.
	Burst      int
	MaxClients int
	IdleTTL    time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		MaxClients:        10000,
		IdleTTL:           10 * time.Minute,
	}
}

// NewLimiter creates a new rate limiter. Collectors go to reg; nil leaves
// them unregistered.
func NewLimiter(config Config, reg prometheus.Registerer, logger *log.Logger) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = config.RequestsPerMinute
	}
	if config.MaxClients <= 0 {
		config.MaxClients = def.MaxClients
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	if logger == nil {
		logger = log.Discard()
	}

	return &Limiter{
		clients:           cache.NewLRUCache(config.MaxClients, config.IdleTTL, cache.WithSlidingTTL[*rate.Limiter]()),
		limit:             rate.Every(time.Minute / time.Duration(config.RequestsPerMinute)),
		burst:             config.Burst,
		requestsPerMinute: config.RequestsPerMinute,
		hits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "leadboard",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		logger: logger.WithComponent(log.ComponentRateLimit),
	}
}

// Allow checks if a request from the given IP should be allowed
func (rl *Limiter) Allow(clientIP string) bool {
	return rl.clientLimiter(clientIP).Allow()
}

func (rl *Limiter) clientLimiter(clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.clients.Get(clientIP); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients.Set(clientIP, l)
	return l
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	return rl.clients.Size()
}

// Register hands the client table to m for periodic expiry.
func (rl *Limiter) Register(m *cache.Manager) {
	m.Register(rl.clients)
}

// retryAfter is the time one token takes to refill, in whole seconds.
func (rl *Limiter) retryAfter() string {
	secs := math.Ceil(60 / float64(rl.requestsPerMinute))
	return strconv.Itoa(int(max(secs, 1)))
}

// Middleware limits unsafe methods only; reads pass through.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			clientIP := extractIP(r)
			if !rl.Allow(clientIP) {
				rl.hits.Inc()
				rl.logger.WarnContext(r.Context(), "Rate limit exceeded",
					log.FieldClientIP, clientIP,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", rl.retryAfter())
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
