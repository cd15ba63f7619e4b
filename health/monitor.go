package health

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
)

// Monitor holds the latest Status per name. It is safe for concurrent use.
type Monitor struct {
	statuses cmap.ConcurrentMap[string, Status]
}

func NewMonitor() *Monitor {
	return &Monitor{statuses: cmap.New[Status]()}
}

// Update records status under name. A zero Timestamp is set to now.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses.Set(name, status)
}

func (m *Monitor) Get(name string) (Status, bool) {
	return m.statuses.Get(name)
}

// GetAll returns a snapshot of every status
func (m *Monitor) GetAll() map[string]Status {
	return m.statuses.Items()
}

func (m *Monitor) Remove(name string) {
	m.statuses.Remove(name)
}

// AggregateHealth folds every recorded status into one named systemName
func (m *Monitor) AggregateHealth(systemName string) Status {
	subs := make([]Status, 0, m.statuses.Count())
	m.statuses.IterCb(func(_ string, s Status) {
		subs = append(subs, s)
	})
	return Aggregate(systemName, subs)
}

// ObserveComponents refreshes the status of each component and removes the
// names in previous that are no longer registered. It returns the names to
// pass as previous next time; statuses under other names are untouched.
func (m *Monitor) ObserveComponents(components map[string]*component.Component, previous []string) []string {
	seen := make([]string, 0, len(components))
	for name, c := range components {
		m.Update(name, FromComponent(c))
		seen = append(seen, name)
	}
	for _, name := range previous {
		if _, still := components[name]; !still {
			m.Remove(name)
		}
	}
	return seen
}
