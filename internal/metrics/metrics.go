package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FollowupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fupgw_followups_total",
			Help: "Followup lifecycle counter by stage",
		},
		[]string{"stage"}, // scheduled|sent|failed|cancelled
	)

	EmailTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fupgw_email_transitions_total",
			Help: "Tracked email status transitions by target status",
		},
		[]string{"to"}, // responded|bounced|stopped|max_reached|expired|pending
	)

	BouncesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fupgw_bounces_total",
			Help: "Classified bounces by type",
		},
		[]string{"type"}, // hard|soft|unknown
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fupgw_notifications_total",
			Help: "Webhook notifications by processing result",
		},
		[]string{"result"}, // accepted|duplicate|invalid|error
	)

	LeaseRenewalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fupgw_lease_renewals_total",
			Help: "Successful provider lease renewals",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		FollowupsTotal,
		EmailTransitionsTotal,
		BouncesTotal,
		NotificationsTotal,
		LeaseRenewalsTotal,
	)
}
