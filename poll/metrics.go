package poll

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "privpoll"

type busMetrics struct {
	events      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
}

func newBusMetrics(registry prometheus.Registerer) *busMetrics {
	factory := promauto.With(registry)
	return &busMetrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published on the bus by type",
		}, []string{"type"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the dispatch queue was full, by type",
		}, []string{"type"}),
		subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Current subscribers by type",
		}, []string{"type"}),
	}
}

type engineMetrics struct {
	pollsCreated   prometheus.Counter
	pollsClosed    prometheus.Counter
	votes          prometheus.Counter
	voteRejections *prometheus.CounterVec
	decryptions    prometheus.Counter
}

func newEngineMetrics(registry prometheus.Registerer) *engineMetrics {
	factory := promauto.With(registry)
	return &engineMetrics{
		pollsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "polls_created_total",
			Help:      "Polls created",
		}),
		pollsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "polls_closed_total",
			Help:      "Polls closed explicitly",
		}),
		votes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "votes_total",
			Help:      "Ballots accepted into a tally",
		}),
		voteRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "vote_rejections_total",
			Help:      "Ballots rejected by reason",
		}, []string{"reason"}),
		decryptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decryption_requests_total",
			Help:      "Decryption workflows requested",
		}),
	}
}

func (m *engineMetrics) rejected(err error) {
	if m == nil {
		return
	}
	m.voteRejections.WithLabelValues(reason(err)).Inc()
}

func reason(err error) string {
	for _, kind := range []struct {
		err  error
		name string
	}{
		{ErrNotFound, "not_found"},
		{ErrPollNotActive, "not_active"},
		{ErrAlreadyVoted, "already_voted"},
		{ErrInvalidOption, "invalid_option"},
		{ErrCryptoValidationFailed, "invalid_proof"},
		{ErrNotAuthorized, "not_authorized"},
		{ErrInvalidIdentity, "invalid_identity"},
	} {
		if errors.Is(err, kind.err) {
			return kind.name
		}
	}
	return "internal"
}

func (m *engineMetrics) created() {
	if m != nil {
		m.pollsCreated.Inc()
	}
}

func (m *engineMetrics) closed() {
	if m != nil {
		m.pollsClosed.Inc()
	}
}

func (m *engineMetrics) voted() {
	if m != nil {
		m.votes.Inc()
	}
}

func (m *engineMetrics) decryptionRequested() {
	if m != nil {
		m.decryptions.Inc()
	}
}
