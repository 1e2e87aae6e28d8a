package observability

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/rosters/internal/domain"
)

var (
	rosterTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster_service",
		Subsystem: "roster",
		Name:      "transitions_total",
		Help:      "Roster transitions grouped by operation and outcome.",
	}, []string{"operation", "outcome"})

	participantsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roster_service",
		Subsystem: "roster",
		Name:      "participants",
		Help:      "Current number of enrolled students per activity.",
	}, []string{"activity"})

	capacityGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roster_service",
		Subsystem: "roster",
		Name:      "capacity",
		Help:      "Maximum number of participants per activity.",
	}, []string{"activity"})

	lastChangeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "roster_service",
		Subsystem: "roster",
		Name:      "last_change_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed roster change.",
	})
)

func init() {
	prometheus.MustRegister(rosterTransitions, participantsGauge, capacityGauge, lastChangeGauge)
}

// gaugeRevisions remembers the newest revision exported per activity so a
// late notification cannot overwrite a newer roster size.
var gaugeRevisions = struct {
	sync.Mutex
	byActivity map[string]int64
}{byActivity: make(map[string]int64)}

// RosterRecorder exports roster transitions as Prometheus metrics.
type RosterRecorder struct {
	now func() time.Time
}

// NewRosterRecorder constructs a RosterRecorder.
func NewRosterRecorder() *RosterRecorder {
	return &RosterRecorder{now: time.Now}
}

// RosterChanged implements domain.RosterObserver.
func (r *RosterRecorder) RosterChanged(op domain.RosterOp, activity domain.Activity) {
	rosterTransitions.WithLabelValues(string(op), "ok").Inc()
	RecordActivity(activity)
	lastChangeGauge.Set(float64(r.now().Unix()))
}

// RosterRejected implements domain.RosterObserver.
func (r *RosterRecorder) RosterRejected(op domain.RosterOp, err error) {
	rosterTransitions.WithLabelValues(string(op), Outcome(err)).Inc()
}

// RecordActivity sets the roster size and capacity gauges for one activity.
// Snapshots older than the last recorded revision are ignored.
func RecordActivity(activity domain.Activity) {
	name := activity.Name.String()

	gaugeRevisions.Lock()
	defer gaugeRevisions.Unlock()
	if last, seen := gaugeRevisions.byActivity[name]; seen && activity.Revision < last {
		return
	}
	gaugeRevisions.byActivity[name] = activity.Revision
	participantsGauge.WithLabelValues(name).Set(float64(len(activity.Participants)))
	capacityGauge.WithLabelValues(name).Set(float64(activity.MaxParticipants))
}

// Outcome maps a roster error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrActivityNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidActivityName):
		return "invalid"
	default:
		return "error"
	}
}
