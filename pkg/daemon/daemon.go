package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/charlie0129/esoh/pkg/config"
	"github.com/charlie0129/esoh/pkg/events"
	"github.com/charlie0129/esoh/pkg/hostbattery"
	"github.com/charlie0129/esoh/pkg/metrics"
)

const (
	// healthHistoryLimit bounds the number of host battery snapshots kept.
	healthHistoryLimit = 100

	healthSnapshotLead     = time.Minute
	healthPreCheckInterval = 30 * time.Second
	healthPreCheckRetries  = 3
)

var (
	conf      config.Config
	hub       *events.EventHub
	history   *hostbattery.History
	registry  *prometheus.Registry
	mtr       *metrics.Metrics
	limiter   *clientRateLimiter
	scheduler *Scheduler
)

// initState sets up the process-wide daemon state around c.
func initState(c config.Config) {
	conf = c
	hub = events.NewEventHub()
	history = hostbattery.NewHistory(healthHistoryLimit)

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mtr = metrics.New(registry, func() float64 { return float64(hub.Subscribers()) })

	limiter = newClientRateLimiter(rate.Limit(c.RateLimit()), c.RateBurst())
	scheduler = newHealthScheduler()
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(ginLogger(logrus.StandardLogger()))

	// Scraping and long-lived streams are not rate limited.
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/events", streamEvents)

	api := router.Group("/")
	api.Use(rateLimit(), limitBody())
	api.GET("/version", getVersion)
	api.GET("/config", getConfig)
	api.PUT("/solver", setSolverOptions)
	api.PUT("/default-parameter-set", setDefaultParameterSet)
	api.GET("/health-schedule", getHealthSchedule)
	api.PUT("/health-schedule", setHealthSchedule)
	api.POST("/health-schedule/skip", skipHealthSnapshot)
	api.POST("/health-schedule/postpone", postponeHealthSnapshot)
	api.GET("/parameter-sets", listParameterSets)
	api.GET("/parameter-sets/:name", getParameterSet)
	api.PUT("/parameter-sets/:name", putParameterSet)
	api.DELETE("/parameter-sets/:name", deleteParameterSet)
	api.GET("/ocp-curves", listOCPCurves)
	api.GET("/ocp-curves/:name", getOCPCurve)
	api.POST("/solve", solve)
	api.POST("/sweep", runSweep)
	api.GET("/health-history", getHealthHistory)
	api.POST("/health-history", postHealthSnapshot)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	c, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(c.LogrusFields()).Infof("config loaded")

	initState(c)
	router := setupRoutes()

	if err := applyHealthSchedule(conf.HealthSchedule()); err != nil {
		logrus.Errorf("invalid health schedule %q, scheduled snapshots disabled: %v", conf.HealthSchedule(), err)
	}
	scheduler.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			limiter.Reset(rate.Limit(conf.RateLimit()), conf.RateBurst())
			if err := applyHealthSchedule(conf.HealthSchedule()); err != nil {
				logrus.Errorf("invalid health schedule %q: %v", conf.HealthSchedule(), err)
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Remove a stale socket left by a crashed daemon.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping scheduler")
	scheduler.Stop()

	// SSE handlers only return once their subscription is closed.
	hub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}
