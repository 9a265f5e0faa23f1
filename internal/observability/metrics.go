package observability

import "github.com/prometheus/client_golang/prometheus"

// Token validation outcomes used as the "result" label.
const (
	TokenValid     = "valid"
	TokenMalformed = "malformed"
	TokenUnknown   = "unknown"
	TokenRevoked   = "revoked"
	TokenError     = "error"
)

var (
	// StatusUpdates counts accepted status updates by status value. The label
	// set is the closed status enum, so cardinality is fixed.
	StatusUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_updates_total",
			Help: "Total number of accepted project status updates.",
		},
		[]string{"status"},
	)

	// TokenValidations counts bearer token checks by outcome.
	TokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Total number of API token validations by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(StatusUpdates, TokenValidations)
}
