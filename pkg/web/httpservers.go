package web

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/gorilla/mux"
	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/net/netutil"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/pkg/healthcheck"
	"github.com/atlassian/gokairos/pkg/util"
)

const (
	// DefaultAddress is the default listen address of the HTTP server.
	DefaultAddress = "127.0.0.1:8080"
	// DefaultMaxConnections is the default limit of concurrent connections, 0 is unlimited.
	DefaultMaxConnections = 100
)

// ServerConfig selects the routes and listener of an HttpServer.
type ServerConfig struct {
	Address           string
	MaxConnections    int
	ReusePort         bool
	EnableProf        bool
	EnableExpVar      bool
	EnableIngestion   bool
	EnableHealthcheck bool
}

// HttpServer serves event ingestion, health checks and debugging routes.
type HttpServer struct {
	logger logrus.FieldLogger
	config ServerConfig
	Router *mux.Router
	events *eventReceiver

	listening chan struct{}
	addr      net.Addr
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

// NewHttpServerFromViper creates an HttpServer from the "http" section.
func NewHttpServerFromViper(
	v *viper.Viper,
	logger logrus.FieldLogger,
	handler gokairos.EventHandler,
	healthChecks []healthcheck.HealthcheckFunc,
	deepChecks []healthcheck.HealthcheckFunc,
) (*HttpServer, error) {
	vSub := util.GetSubViper(v, "http")
	vSub.SetDefault("address", DefaultAddress)
	vSub.SetDefault("max-connections", DefaultMaxConnections)
	vSub.SetDefault("reuse-port", false)
	vSub.SetDefault("enable-prof", false)
	vSub.SetDefault("enable-expvar", false)
	vSub.SetDefault("enable-ingestion", true)
	vSub.SetDefault("enable-healthcheck", true)

	return NewHttpServer(
		logger.WithField("http-server", "http"),
		handler,
		ServerConfig{
			Address:           vSub.GetString("address"),
			MaxConnections:    vSub.GetInt("max-connections"),
			ReusePort:         vSub.GetBool("reuse-port"),
			EnableProf:        vSub.GetBool("enable-prof"),
			EnableExpVar:      vSub.GetBool("enable-expvar"),
			EnableIngestion:   vSub.GetBool("enable-ingestion"),
			EnableHealthcheck: vSub.GetBool("enable-healthcheck"),
		},
		healthChecks,
		deepChecks,
	)
}

// NewHttpServer creates an HttpServer.  handler may be nil when ingestion is disabled.
func NewHttpServer(
	logger logrus.FieldLogger,
	handler gokairos.EventHandler,
	config ServerConfig,
	healthChecks []healthcheck.HealthcheckFunc,
	deepChecks []healthcheck.HealthcheckFunc,
) (*HttpServer, error) {
	var routes []route

	server := &HttpServer{
		logger:    logger,
		config:    config,
		listening: make(chan struct{}),
	}

	if config.EnableProf {
		profiler := &traceProfiler{logger: logger}
		routes = append(routes,
			route{path: "/memprof", handler: profiler.MemProf, method: "POST", name: "profmem_post"},
			route{path: "/pprof", handler: profiler.PProf, method: "POST", name: "profpprof_post"},
			route{path: "/trace", handler: profiler.Trace, method: "POST", name: "proftrace_post"},
		)
	}

	if config.EnableExpVar {
		routes = append(routes,
			route{path: "/expvar", handler: expvar.Handler().ServeHTTP, method: "GET", name: "expvar_get"},
		)
	}

	if config.EnableIngestion {
		if handler == nil {
			return nil, fmt.Errorf("ingestion requires an event handler")
		}
		server.events = newEventReceiver(logger, "http", handler)
		routes = append(routes,
			route{path: "/v1/events", handler: server.events.EventHandler, method: "POST", name: "eventsv1_post"},
		)
	}

	if config.EnableHealthcheck {
		hc := &healthChecker{
			logger:       logger,
			healthChecks: healthChecks,
			deepChecks:   deepChecks,
		}
		routes = append(routes,
			route{path: "/healthcheck", handler: hc.healthCheck, method: "GET", name: "healthcheck_get"},
			route{path: "/deepcheck", handler: hc.deepCheck, method: "GET", name: "deepcheck_get"},
		)
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("must enable at least one of prof, expvar, ingestion, or healthcheck")
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logger.WithFields(logrus.Fields{
		"address":            config.Address,
		"max-connections":    config.MaxConnections,
		"reuse-port":         config.ReusePort,
		"enable-pprof":       config.EnableProf,
		"enable-expvar":      config.EnableExpVar,
		"enable-ingestion":   config.EnableIngestion,
		"enable-healthcheck": config.EnableHealthcheck,
	}).Info("Created server")

	return server, nil
}

func (hs *HttpServer) notFound(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("not found"))
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.HandleFunc(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %v", route.name, err)
		}
	}

	return router, nil
}

func (hs *HttpServer) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logFields := logrus.Fields{
			"srcip": strings.Split(req.RemoteAddr, ":")[0],
			"path":  req.URL.Path,
		}
		if route := mux.CurrentRoute(req); route == nil {
			logFields["method"] = req.Method
		} else {
			logFields["route"] = route.GetName()
		}
		if source := req.Header.Get("X-Forwarded-For"); source != "" {
			logFields["forwarded_for"] = source
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		logFields["duration"] = float64(time.Since(start)) / float64(time.Millisecond)
		hs.logger.WithFields(logFields).Debug("request")
	})
}

func (hs *HttpServer) listen() (net.Listener, error) {
	var l net.Listener
	var err error
	if hs.config.ReusePort {
		l, err = reuseport.Listen("tcp", hs.config.Address)
	} else {
		l, err = net.Listen("tcp", hs.config.Address)
	}
	if err != nil {
		return nil, err
	}
	if hs.config.MaxConnections > 0 {
		l = netutil.LimitListener(l, hs.config.MaxConnections)
	}
	return l, nil
}

// Addr blocks until the server is listening and returns its address, or nil if ctx is done first.
func (hs *HttpServer) Addr(ctx context.Context) net.Addr {
	select {
	case <-ctx.Done():
		return nil
	case <-hs.listening:
		return hs.addr
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (hs *HttpServer) Run(ctx context.Context) {
	l, err := hs.listen()
	if err != nil {
		hs.logger.WithError(err).Error("web server failed to listen")
		return
	}
	hs.addr = l.Addr()
	close(hs.listening)

	if hs.events != nil {
		var wg wait.Group
		defer wg.Wait()
		wg.StartWithContext(ctx, hs.events.RunMetrics)
	}

	server := &http.Server{
		Handler: hs.Router,
	}

	chStopped := make(chan struct{}, 1)
	go hs.waitAndStop(ctx, server, chStopped)

	hs.logger.WithField("address", hs.addr.String()).Info("listening")

	err = server.Serve(l)
	if err != http.ErrServerClosed {
		hs.logger.WithError(err).Error("web server failed")
		return
	}

	// Wait for graceful shutdown of existing connections
	select {
	case <-chStopped:
	case <-time.After(6 * time.Second):
		hs.logger.Info("timeout waiting for webserver to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.
func (hs *HttpServer) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	hs.logger.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(timeoutCtx); err != nil {
		hs.logger.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- struct{}{}
}
