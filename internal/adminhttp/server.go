package adminhttp

import (
	"context"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/unrolled/secure"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bavix/scanbridge/internal/config"
	"github.com/bavix/scanbridge/internal/scanner"
)

const (
	defaultReadHeaderTimeout     = 5 * time.Second
	defaultShutdownTimeout       = 5 * time.Second
	defaultWebSocketReadLimit    = 1024
	defaultWebSocketTimeout      = 60 * time.Second
	defaultWebSocketPingInterval = 30 * time.Second
	defaultWebSocketPingTimeout  = 5 * time.Second
)

// Server exposes the scanner service over HTTP/JSON and a websocket event stream.
type Server struct {
	cfg       config.HTTPConfig
	mux       *mux.Router
	svc       *scanner.Service
	startTime time.Time
}

// NewServer creates the HTTP surface over svc.
func NewServer(cfg *config.HTTPConfig, svc *scanner.Service) *Server {
	s := &Server{
		cfg:       *cfg,
		mux:       mux.NewRouter(),
		svc:       svc,
		startTime: time.Now(),
	}

	s.routes()

	return s
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	// Fast-fail if port is occupied
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return err
	}

	srv := s.createServer(ctx, s.Handler(ctx))

	zerolog.Ctx(ctx).Info().Str("addr", ln.Addr().String()).Msg("http listen")

	go func() { _ = srv.Serve(ln) }()

	return nil
}

func (s *Server) routes() {
	s.mux.Use(s.metricsMiddleware)

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimitMiddleware(s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst))

	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/connection", s.handleConnection).Methods(http.MethodGet, http.MethodPost, http.MethodDelete)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost, http.MethodDelete)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/validate/{code}", s.handleValidate).Methods(http.MethodGet)
	api.HandleFunc("/products/{code}", s.handleProduct).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.mux.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the complete handler: /ws bypasses the middleware, everything
// else goes through it.
func (s *Server) Handler(ctx context.Context) http.Handler {
	chain := s.buildMiddlewareChain(ctx)

	// Bypass middleware and otel wrappers for WebSocket upgrades to preserve http.Hijacker
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			s.handleWS(w, r.WithContext(zerolog.Ctx(ctx).WithContext(r.Context())))

			return
		}

		chain.ServeHTTP(w, r)
	})
}

func (s *Server) buildMiddlewareChain(ctx context.Context) http.Handler {
	logger := zerolog.Ctx(ctx)

	var h http.Handler = s.mux

	c := cors.New(cors.Options{
		AllowOriginFunc: func(_ string) bool { return true },
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:  []string{"*"},
	})
	h = c.Handler(h)

	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; connect-src 'self' ws: wss:",
	})
	h = sec.Handler(h)

	// Logging + request metadata
	h = hlog.NewHandler(*logger)(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		logger.Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http")
	})(h)
	h = chimw.RequestID(h)
	h = chimw.RealIP(h)
	h = chimw.Recoverer(h)

	return otelhttp.NewHandler(h, "adminhttp")
}

func (s *Server) createServer(ctx context.Context, handler http.Handler) *http.Server {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
	srv.BaseContext = func(_ net.Listener) context.Context { return ctx }

	go func() {
		<-ctx.Done()
		// graceful shutdown with timeout, then force close
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(shutdownCtx)
		_ = srv.Close()
	}()

	return srv
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }} //nolint:gochecknoglobals // websocket upgrader

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Log the error but don't use http.Error as it conflicts with WebSocket upgrade
		log.Error().Err(err).Msg("WebSocket upgrade failed")

		return
	}

	b := s.svc.Broadcaster()

	// Snapshot first, then live events; Send serializes with broadcasts.
	b.Attach(conn)
	_ = b.Send(conn, map[string]any{"type": "connection_state", "data": s.connectionView()})
	_ = b.Send(conn, map[string]any{"type": "history", "data": s.svc.History(0)})

	conn.SetReadLimit(defaultWebSocketReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(defaultWebSocketTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(defaultWebSocketTimeout))

		return nil
	})

	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(defaultWebSocketPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(defaultWebSocketPingTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	b.Detach(conn)

	_ = conn.Close()

	log.Debug().Int("clients", b.Len()).Msg("websocket client left")
}
