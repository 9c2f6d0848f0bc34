package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScrapeCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcaller_scrape_cycles_total",
			Help: "Search cycles by pagination outcome",
		},
		[]string{"status"},
	)

	LeadsDiscovered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadcaller_leads_per_cycle",
			Help:    "Number of leads in each assembled dataset",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		},
	)

	CallsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcaller_calls_dispatched_total",
			Help: "Outbound call attempts by result",
		},
		[]string{"result"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcaller_webhook_events_total",
			Help: "Webhook events by type and correlation outcome",
		},
		[]string{"type", "outcome"},
	)

	Judgments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcaller_judgments_total",
			Help: "Criteria judgments by verdict",
		},
		[]string{"verdict"},
	)

	QualifiedLeads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadcaller_qualified_leads",
			Help: "Leads in the current qualified snapshot",
		},
	)
)
