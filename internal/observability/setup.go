package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

const (
	VoteAccepted    = "accepted"
	VoteRetracted   = "retracted"
	VoteSlotFull    = "slot_full"
	VoteUnverified  = "unverified"
	VotePollClosed  = "poll_closed"
	VotePollUnknown = "poll_unknown"
	VoteFailed      = "failed"
)

var (
	registerOnce sync.Once

	pollsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftbot_polls_created_total",
		Help: "Daily polls posted to groups",
	})
	pollsClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftbot_polls_closed_total",
		Help: "Daily polls closed with a report",
	})
	votesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftbot_votes_total",
			Help: "Poll answers by outcome",
		},
		[]string{"outcome"},
	)
	remindersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftbot_reminders_sent_total",
		Help: "Reminder messages posted",
	})
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftbot_jobs_total",
			Help: "Scheduled job runs by status",
		},
		[]string{"job", "status"},
	)
	updateProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiftbot_update_processing_duration_seconds",
			Help:    "Time spent processing Telegram updates",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			pollsCreatedTotal,
			pollsClosedTotal,
			votesTotal,
			remindersTotal,
			jobsTotal,
			updateProcessingDuration,
		)
	})
}

// Service installs the tracer provider and serves /metrics. It is a
// lifecycle component; an empty address disables the HTTP listener.
type Service struct {
	addr     string
	server   *http.Server
	provider *trace.TracerProvider
}

func NewService(addr string) *Service {
	return &Service{addr: addr}
}

func (s *Service) Start(_ context.Context) error {
	register()

	s.provider = trace.NewTracerProvider()
	otel.SetTracerProvider(s.provider)

	if s.addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("context", "observability").WithField("error", err.Error()).Error("metrics server failed")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	var errs error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("shutdown metrics server: %w", err))
		}
	}
	if s.provider != nil {
		if err := s.provider.Shutdown(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	return errs
}

func RecordPollCreated() {
	pollsCreatedTotal.Inc()
}

func RecordPollClosed() {
	pollsClosedTotal.Inc()
}

func RecordVote(outcome string) {
	votesTotal.WithLabelValues(outcome).Inc()
}

func RecordReminder() {
	remindersTotal.Inc()
}

func RecordJob(job string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	jobsTotal.WithLabelValues(job, status).Inc()
}

// StartUpdateProcessing returns a function recording the processing time
// under the given status.
func StartUpdateProcessing() func(status string) {
	started := time.Now()
	return func(status string) {
		updateProcessingDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
}
