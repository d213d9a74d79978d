package metrics

import "github.com/prometheus/client_golang/prometheus"

// Comment processing results.
const (
	ResultReplied     = "replied"
	ResultNoRule      = "no_rule"
	ResultNoReply     = "no_reply"
	ResultUnmonitored = "unmonitored"
	ResultNoTarget    = "no_target"
)

// CommentMetrics holds Prometheus metrics for the comment resolution pipeline.
type CommentMetrics struct {
	CommentsProcessed  *prometheus.CounterVec
	RulesFired         *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	ActionsRun         *prometheus.CounterVec
}

// NewCommentMetrics creates and registers comment pipeline metrics on the given registry.
func NewCommentMetrics(reg prometheus.Registerer) *CommentMetrics {
	m := &CommentMetrics{
		CommentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_processed_total",
			Help:      "Total number of comments processed, by result.",
		}, []string{"result"}),
		RulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Total number of resolved response rules, by tier.",
		}, []string{"tier"}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "comment_processing_duration_seconds",
			Help:      "Duration from comment receipt to reply hand-off in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),
		ActionsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_run_total",
			Help:      "Total number of special-trigger actions run, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.CommentsProcessed, m.RulesFired, m.ProcessingDuration, m.ActionsRun)
	return m
}
