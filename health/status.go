package health

import (
	"regexp"
	"sort"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
)

// Level grades a Status; the zero value is not a valid level
type Level string

// Levels from best to worst
const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelUnhealthy Level = "unhealthy"
)

func (l Level) rank() int {
	switch l {
	case LevelHealthy:
		return 0
	case LevelDegraded:
		return 1
	default:
		return 2
	}
}

// Status is the health of one component, connection or the whole host
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      Level     `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

func newStatus(level Level, component, message string) Status {
	return Status{
		Component: component,
		Healthy:   level == LevelHealthy,
		Status:    level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy returns a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(LevelHealthy, component, message)
}

// NewDegraded returns a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(LevelDegraded, component, message)
}

// NewUnhealthy returns an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(LevelUnhealthy, component, message)
}

// IsHealthy reports whether the level is healthy
func (s Status) IsHealthy() bool { return s.Status == LevelHealthy }

// IsDegraded reports whether the level is degraded
func (s Status) IsDegraded() bool { return s.Status == LevelDegraded }

// IsUnhealthy reports whether the level is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == LevelUnhealthy }

var aggregateMessages = map[Level]string{
	LevelHealthy:   "All sub-components are healthy",
	LevelDegraded:  "One or more sub-components are degraded",
	LevelUnhealthy: "One or more sub-components are unhealthy",
}

// Aggregate grades component at the worst level among subs, which are
// kept sorted by name. No subs is healthy.
func Aggregate(component string, subs []Status) Status {
	worst := LevelHealthy
	for _, sub := range subs {
		if sub.Status.rank() > worst.rank() {
			worst = sub.Status
		}
	}
	if worst != LevelHealthy && worst != LevelDegraded {
		worst = LevelUnhealthy
	}

	msg := aggregateMessages[worst]
	if len(subs) == 0 {
		msg = "No sub-components to aggregate"
	}
	status := newStatus(worst, component, msg)
	status.SubStatuses = append([]Status(nil), subs...)
	sort.Slice(status.SubStatuses, func(i, j int) bool {
		return status.SubStatuses[i].Component < status.SubStatuses[j].Component
	})
	return status
}

// FromComponent grades a component by lifecycle state: ACTIVE and INACTIVE
// are healthy, CREATED is degraded, ERROR is unhealthy.
func FromComponent(c *component.Component) Status {
	switch st := c.State(); st {
	case component.StateActive, component.StateInactive:
		return NewHealthy(c.Name(), "Component "+st.String())
	case component.StateCreated:
		return NewDegraded(c.Name(), "Component not initialised")
	default:
		return NewUnhealthy(c.Name(), "Component "+st.String())
	}
}

// FromError builds an unhealthy status from err with sensitive details removed
func FromError(name string, err error) Status {
	if err == nil {
		return NewHealthy(name, "OK")
	}
	return NewUnhealthy(name, sanitizeErrorMessage(err.Error()))
}

// redactions run in order; URLs go before paths since URLs contain paths
var redactions = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?:https?|nats|wss?|tls)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`(?i)(?:password|token|key|secret|credential)[^a-zA-Z\s]*[:=][^,\s}]+`), "[REDACTED]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
}

// sanitizeErrorMessage replaces URLs, credentials, paths, IP addresses and
// ports with placeholders
func sanitizeErrorMessage(msg string) string {
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.with)
	}
	return msg
}
