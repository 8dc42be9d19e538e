package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devricklin/inboxsync/internal/log"
)

// InboxMetrics holds the inbox engine collectors
type InboxMetrics struct {
	Badge          prometheus.Gauge
	VisibleItems   prometheus.Gauge
	ServerUnread   prometheus.Gauge
	ReconcileTotal *prometheus.CounterVec
	ExpiredTotal   prometheus.Counter
	IntakeTotal    *prometheus.CounterVec
}

// NewInboxMetrics creates and registers the collectors on reg
func NewInboxMetrics(reg prometheus.Registerer) *InboxMetrics {
	m := &InboxMetrics{
		Badge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inbox_badge",
			Help: "Number of unread, visible inbox items",
		}),
		VisibleItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inbox_visible_items",
			Help: "Number of visible, unexpired inbox items",
		}),
		ServerUnread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inbox_server_unread",
			Help: "Unread count reported by the server on the last refresh",
		}),
		ReconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbox_reconcile_total",
				Help: "Total number of reconciliations by result",
			},
			[]string{"result"},
		),
		ExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inbox_expired_total",
			Help: "Total number of items purged on expiration",
		}),
		IntakeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbox_intake_total",
				Help: "Total number of delivery intake signals by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.Badge,
		m.VisibleItems,
		m.ServerUnread,
		m.ReconcileTotal,
		m.ExpiredTotal,
		m.IntakeTotal,
	)
	return m
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infow("Metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("Metrics server failed", "error", err)
		}
	}()

	<-ctx.Done()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Errorw("Metrics server shutdown failed", "error", err)
	}
}
