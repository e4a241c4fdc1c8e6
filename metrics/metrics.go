package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "minimanager"
	subsystem = "node"
)

var (
	bootTimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "boot_time_seconds",
		Help:      "Boot time of this instance since epoch (1970)",
	})
	timeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "time_seconds",
		Help:      "System time in seconds since epoch (1970)",
	})

	// WorldRunning is 1 while the world has a live process and 0 otherwise.
	WorldRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "world_running",
	}, []string{"world_id"})
	WorldCrashes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "world_crashes_total",
		Help:      "Processes that exited without being stopped by the daemon",
	}, []string{"world_id"})

	PortsAllocated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ports_allocated",
	})

	ProxyRoutes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "proxy_routes",
		Help:      "Routes in the last snapshot applied to the proxy",
	})
	ProxyReloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "proxy_reloads_total",
	})
	ProxyLaunches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "proxy_launches_total",
	})
	ReconcileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconcile_errors_total",
	}, []string{"step"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
	}, []string{"method", "route_path", "code"})
)

// Serve exposes the registry on bind until the context is canceled.
func Serve(ctx context.Context, bind string) {
	bootTimeSeconds.Set(float64(time.Now().UnixNano()) / 1e9)

	srv := &http.Server{Addr: bind, Handler: promhttp.Handler()}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("metrics: done")
				_ = srv.Close()
				return
			case t := <-ticker.C:
				timeSeconds.Set(float64(t.UnixNano()) / 1e9)
			}
		}
	}()
	log.WithField("bind", bind).Info("serving prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithField("error", err).Error("failed to start metrics server")
	}
}

// SetWorldRunning records whether the world currently has a process.
func SetWorldRunning(id string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	WorldRunning.WithLabelValues(id).Set(v)
}

// DeleteWorld removes every series labelled with the world. Previously
// scraped data is still kept by Prometheus.
func DeleteWorld(id string) {
	WorldRunning.DeleteLabelValues(id)
	WorldCrashes.DeleteLabelValues(id)
}
