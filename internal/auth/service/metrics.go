package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics counts lifecycle operations by outcome. A nil
// *SessionMetrics records nothing.
type SessionMetrics struct {
	ops *prometheus.CounterVec
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stay",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session lifecycle operations by operation and result.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(m.ops)
	return m
}

var resultErrors = []error{
	ErrMalformed,
	ErrExpired,
	ErrInvalidSignature,
	ErrStaleOrForgedToken,
	ErrSessionNotFound,
	ErrStoreUnavailable,
	ErrInvalidSubject,
}

func (m *SessionMetrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, resultLabel(err)).Inc()
}

// resultLabel keeps label cardinality bounded: wrapped errors collapse to
// their sentinel, anything unknown is "error".
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, sentinel := range resultErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "error"
}
