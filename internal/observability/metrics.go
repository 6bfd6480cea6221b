package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the control plane. Registered on the default
// registry so an embedding process only has to expose promhttp.
var (
	PredictionsLogged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mlcp",
		Subsystem: "monitor",
		Name:      "predictions_logged_total",
		Help:      "Total predictions logged to the performance monitor.",
	})

	PredictionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mlcp",
		Subsystem: "monitor",
		Name:      "predictions_evicted_total",
		Help:      "Predictions evicted from the rolling buffer.",
	})

	WindowMAE = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mlcp",
		Subsystem: "monitor",
		Name:      "window_mae",
		Help:      "Mean absolute error over the most recent metrics window.",
	})

	WindowRMSE = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mlcp",
		Subsystem: "monitor",
		Name:      "window_rmse",
		Help:      "Root mean square error over the most recent metrics window.",
	})

	DriftChecks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mlcp",
		Subsystem: "drift",
		Name:      "checks_total",
		Help:      "Drift detection runs.",
	})

	DriftedFeatures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mlcp",
		Subsystem: "drift",
		Name:      "drifted_features_total",
		Help:      "Features flagged as drifted across all checks.",
	})

	StageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlcp",
		Subsystem: "registry",
		Name:      "stage_transitions_total",
		Help:      "Model stage transitions applied, by target stage.",
	}, []string{"target_stage"})

	ModelsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mlcp",
		Subsystem: "registry",
		Name:      "models_registered_total",
		Help:      "Model versions registered.",
	})
)
