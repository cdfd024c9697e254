// Package observability holds process-wide Prometheus collectors for the carbon ledger.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "carbonledger",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity record persisted.",
	})
	offsetPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "carbonledger",
		Subsystem: "persistence",
		Name:      "last_offset_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent carbon offset persisted.",
	})
	emissionsLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonledger",
		Subsystem: "emissions",
		Name:      "logged_kg_total",
		Help:      "Kilograms of CO2 computed for newly logged activities, by category.",
	}, []string{"category"})
	factorResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonledger",
		Subsystem: "emissions",
		Name:      "factor_resolutions_total",
		Help:      "Emission factor lookups by category and resolution (exact, fallback, none).",
	}, []string{"category", "resolution"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, offsetPersistGauge, emissionsLogged, factorResolutions)
}

// RecordActivityPersisted updates the activity persistence watermark.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordOffsetPersisted updates the offset persistence watermark.
func RecordOffsetPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	offsetPersistGauge.Set(float64(ts.Unix()))
}

// RecordEmissionLogged adds kg to the per-category emission counter. Negative
// values are ignored since counters cannot decrease.
func RecordEmissionLogged(category string, kg float64) {
	if kg <= 0 {
		return
	}
	emissionsLogged.WithLabelValues(category).Add(kg)
}

// RecordFactorResolution counts how an emission factor was chosen.
func RecordFactorResolution(category, resolution string) {
	factorResolutions.WithLabelValues(category, resolution).Inc()
}
