package metrics

import "github.com/prometheus/client_golang/prometheus"

// Mutation operation labels.
const (
	OpLike        = "like"
	OpComment     = "comment"
	OpUpload      = "upload"
	OpEditProfile = "edit_profile"
	OpCaption     = "caption"
)

// EngagementMetrics counts mutations and ranking resolution gaps.
type EngagementMetrics struct {
	Mutations      *prometheus.CounterVec
	ResolutionGaps prometheus.Counter
}

// NewEngagementMetrics creates and registers engagement metrics on reg.
func NewEngagementMetrics(reg prometheus.Registerer) *EngagementMetrics {
	m := &EngagementMetrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engagement",
			Name:      "mutations_total",
			Help:      "Total engagement mutations, by operation and status.",
		}, []string{"operation", "status"}),
		ResolutionGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "resolution_gaps_total",
			Help:      "Liked meme ids missing from the catalog cache while ranking.",
		}),
	}

	reg.MustRegister(m.Mutations, m.ResolutionGaps)
	return m
}

// ObserveMutation records the outcome of one mutation.
func (m *EngagementMetrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op, status(err)).Inc()
}

// ObserveResolutionGaps adds n excluded likes.
func (m *EngagementMetrics) ObserveResolutionGaps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ResolutionGaps.Add(float64(n))
}
