// Package monitor derives low-stock severity from ledger state and decides
// when a change is worth an alert.
package monitor

import "time"

const (
	DefaultThreshold     = 10
	DefaultCriticalLevel = 5
)

type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "NONE"
	}
}

// Reading is the available quantity of one ledger entry at a point in time.
// Known is false when the entry did not exist before the mutation.
type Reading struct {
	Available int
	Known     bool
}

// Alert describes a severity-crossing transition.
type Alert struct {
	Available int
	Threshold int
	Severity  Severity
	RaisedAt  time.Time
}

type Monitor struct {
	threshold     int
	criticalLevel int
	now           func() time.Time
}

// New returns a Monitor; non-positive arguments fall back to the defaults.
func New(threshold, criticalLevel int) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if criticalLevel <= 0 {
		criticalLevel = DefaultCriticalLevel
	}
	return &Monitor{
		threshold:     threshold,
		criticalLevel: criticalLevel,
		now:           time.Now,
	}
}

func (m *Monitor) Threshold() int {
	return m.threshold
}

// Severity is CRITICAL at or below the critical level, WARNING below the
// threshold, NONE otherwise.
func (m *Monitor) Severity(available int) Severity {
	switch {
	case available <= m.criticalLevel:
		return SeverityCritical
	case available < m.threshold:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// Evaluate compares the state before and after a mutation. It alerts only when
// severity escalates or the entry runs out of stock, so repeated changes
// within one band stay quiet.
func (m *Monitor) Evaluate(before, after Reading) (Alert, bool) {
	prev := SeverityNone
	prevAvailable := -1
	if before.Known {
		prev = m.Severity(before.Available)
		prevAvailable = before.Available
	}
	next := m.Severity(after.Available)

	escalated := next > prev
	depleted := after.Available == 0 && prevAvailable != 0
	if !escalated && !depleted {
		return Alert{}, false
	}

	return Alert{
		Available: after.Available,
		Threshold: m.threshold,
		Severity:  next,
		RaisedAt:  m.now(),
	}, true
}
