// Package metrics exposes Prometheus instrumentation for the cache daemon.
//
// Collection is opt-in: until Init is called every record function is a
// no-op, so packages can instrument unconditionally with zero overhead when
// metrics are disabled.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelcache/reelcache/internal/logger"
)

var (
	initOnce sync.Once
	registry *prometheus.Registry
	enabled  bool

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	acquisitions   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	evictionsTotal prometheus.Counter
	lockWaitCount  prometheus.Counter
	storeUsedBytes prometheus.Gauge
	storeFileCount prometheus.Gauge
)

// Init registers all collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelcache",
			Name:      "cache_hits_total",
			Help:      "Requests served from the local content store.",
		})
		cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelcache",
			Name:      "cache_misses_total",
			Help:      "Requests that required a remote acquisition.",
		})
		acquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelcache",
			Name:      "acquisitions_total",
			Help:      "Acquisition attempts by result.",
		}, []string{"result"})
		fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reelcache",
			Name:      "fetch_duration_seconds",
			Help:      "Remote fetch duration.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		})
		evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelcache",
			Name:      "evictions_total",
			Help:      "Catalog entries evicted by capacity enforcement.",
		})
		lockWaitCount = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelcache",
			Name:      "lock_waits_total",
			Help:      "Acquisitions that had to wait on another caller's lock.",
		})
		storeUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reelcache",
			Name:      "store_used_bytes",
			Help:      "Bytes currently stored.",
		})
		storeFileCount = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reelcache",
			Name:      "store_files",
			Help:      "Files currently stored.",
		})

		registry.MustRegister(
			cacheHits, cacheMisses, acquisitions, fetchDuration,
			evictionsTotal, lockWaitCount, storeUsedBytes, storeFileCount,
		)

		enabled = true
	})
}

// IsEnabled reports whether Init has run.
func IsEnabled() bool {
	return enabled
}

// RecordCacheHit counts a request served from the store.
func RecordCacheHit() {
	if !enabled {
		return
	}
	cacheHits.Inc()
}

// RecordCacheMiss counts a request that triggered acquisition.
func RecordCacheMiss() {
	if !enabled {
		return
	}
	cacheMisses.Inc()
}

// RecordAcquisition counts one acquisition attempt. result is one of
// "success", "fetch_failed", "commit_failed", "lock_timeout", "reused".
func RecordAcquisition(result string) {
	if !enabled {
		return
	}
	acquisitions.WithLabelValues(result).Inc()
}

// ObserveFetch records the duration of one remote fetch.
func ObserveFetch(d time.Duration) {
	if !enabled {
		return
	}
	fetchDuration.Observe(d.Seconds())
}

// RecordEvictions counts entries removed by an eviction pass.
func RecordEvictions(n int) {
	if !enabled {
		return
	}
	evictionsTotal.Add(float64(n))
}

// RecordLockWait counts a caller that blocked on another acquisition.
func RecordLockWait() {
	if !enabled {
		return
	}
	lockWaitCount.Inc()
}

// SetStoreUsage updates the store occupancy gauges.
func SetStoreUsage(usedBytes uint64, fileCount int) {
	if !enabled {
		return
	}
	storeUsedBytes.Set(float64(usedBytes))
	storeFileCount.Set(float64(fileCount))
}

// Handler returns the /metrics HTTP handler for the package registry.
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve runs the standalone metrics HTTP server until the context is
// cancelled.
func Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
