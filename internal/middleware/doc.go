/*
Package middleware provides the infrastructure HTTP middleware wrapped
around every route in internal/api/router.go: gzip compression,
in-process latency tracking, request-ID propagation, and Prometheus
request metrics. Credential verification and per-credential rate
limiting are separate concerns, handled by internal/api/auth.go and
go-chi/httprate respectively, and are layered on top of this package's
middleware in router.go rather than provided by it.

Key Components:

  - Compression: Gzip compression for every response when the client accepts gzip
  - Performance Monitor: Request latency tracking with percentile calculations
  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation

Middleware Stack:

router.go composes these, chi's cors.Handler, and httprate.Limit under
a single chi.Router; the effective order for a request is:

	chi router
	  -> RequestID            // Layer 1: request tracking
	    -> PrometheusMetrics  // Layer 2: metrics
	      -> Compression      // Layer 3: gzip
	        -> cors.Handler   // Layer 4: CORS headers
	          -> httprate.Limit // Layer 5: per-credential rate limiting
	            -> handler      // Layer 6: business logic

Usage Example - Compression:

	import "github.com/osservatorio-istat/osservatorio/internal/middleware"

	// Wrap handler with gzip compression
	http.HandleFunc("/api/v1/data",
	    middleware.Compression(handler),
	)

	// Responses of any size are compressed
	// Accept-Encoding: gzip header is required

Usage Example - Performance Monitoring:

	// Create performance monitor keeping the 1000 most recent samples
	perfMon := middleware.NewPerformanceMonitor(1000)

	// Wrap handler (an http.Handler)
	http.Handle("/api/v1/stats",
	    perfMon.Middleware(handler),
	)

	// Get per-endpoint performance statistics
	for _, s := range perfMon.GetStats() {
	    fmt.Printf("%s p50: %dms, p95: %dms, p99: %dms\n",
	        s.Path, s.P50Duration, s.P95Duration, s.P99Duration)
	}

Usage Example - Request ID:

	// Request ID middleware
	http.HandleFunc("/api/v1/logs",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := r.Context().Value(middleware.RequestIDKey).(string)
	    log.Printf("[%s] Processing request", requestID)
	}

Performance Characteristics:

  - Compression: 70-90% size reduction for JSON (text/json mime types)
  - Compression overhead: ~1-2ms for typical responses
  - Metrics overhead: <0.1ms per request
  - Request ID overhead: <0.01ms (UUID generation)
  - Performance monitor: mutex-guarded sliding window of latency samples

Compression Details:

The compression middleware:
  - Compresses every response, with no size threshold
  - Supports gzip encoding (Accept-Encoding: gzip)
  - Applies to all content types
  - Automatically sets Content-Encoding header
  - Does not flush compressed data mid-response; output is written when
    the gzip buffer fills and when the handler returns

Performance Monitor:

The performance monitor tracks:
  - Request count per endpoint (status codes are recorded but no error
    rate is computed)
  - Latency percentiles (p50, p95, p99), min, max and average
  - Sliding window of the maxMetrics most recent requests
  - Thread-safe concurrent access with RWMutex

Thread Safety:

All middleware components are thread-safe:
  - Compression takes a gzip writer from a sync.Pool for each request
  - Performance monitor uses sync.RWMutex
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

See Also:

  - internal/api/auth.go: credential verification
  - internal/api: HTTP handlers and router wiring
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
