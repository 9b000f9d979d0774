package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openclaw/chromecrawl/internal/progress"
)

// PrometheusSink exports crawl progress metrics. It owns all collectors for
// job completions, job durations, block detections, and cooldown time.
type PrometheusSink struct {
	jobsStarted     prometheus.Counter
	jobsCompleted   *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	blocksDetected  prometheus.Counter
	cooldownSeconds prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chromecrawl_jobs_started_total",
			Help: "Total job attempts started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chromecrawl_jobs_completed_total",
			Help: "Job attempts completed, partitioned by result.",
		}, []string{"result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chromecrawl_job_duration_seconds",
			Help:    "Wall time per job attempt.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 60, 120},
		}, []string{"result"}),
		blocksDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chromecrawl_blocks_detected_total",
			Help: "Fetches classified as anti-automation challenge pages.",
		}),
		cooldownSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chromecrawl_cooldown_seconds_total",
			Help: "Seconds spent in scheduled cooldown pauses.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobDuration,
		s.blocksDetected,
		s.cooldownSeconds,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors for one event.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.jobDuration.WithLabelValues("success").Observe(evt.Dur.Seconds())
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.jobDuration.WithLabelValues("error").Observe(evt.Dur.Seconds())
		if evt.Blocked {
			s.blocksDetected.Inc()
		}
	case progress.StageCooldown:
		s.cooldownSeconds.Add(evt.Dur.Seconds())
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
