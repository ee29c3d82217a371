package membership

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
)

// Operation labels.
const (
	OpAdd          = "add"
	OpRemove       = "remove"
	OpListDevices  = "list_devices"
	OpListGroups   = "list_groups"
	OpMemberCounts = "member_counts"
)

// Metrics counts membership operations by outcome.
type Metrics struct {
	Operations *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "membership_operations_total",
			Help: "Device-group membership operations by outcome",
		}, []string{"operation", "outcome"}),
	}
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var de *dErrors.Error
	if !errors.As(err, &de) {
		return "error"
	}
	switch de.Code {
	case dErrors.CodeForbidden, dErrors.CodeUnauthorized:
		return "denied"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return "invalid"
	}
	return "error"
}
