package natsclient

import (
	"time"

	"github.com/nats-io/nats.go"
)

func (m *Client) notifyHealth(healthy bool) {
	if fn := m.onHealthChange; fn != nil {
		go fn(healthy)
	}
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	m.setStatus(StatusReconnecting)
	m.logger.Warn("NATS disconnected", "error", err)
	m.notifyHealth(false)
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.metrics.RecordNATSReconnect()
	m.logger.Info("NATS reconnected")
	m.notifyHealth(true)
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
	m.notifyHealth(false)
}

func (m *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		m.logger.Error("NATS async error", "subject", sub.Subject, "error", err)
		return
	}
	m.logger.Error("NATS async error", "error", err)
}

// startHealthMonitoring probes RTT every healthInterval. A failed probe
// moves a connected client to reconnecting and a successful one back.
func (m *Client) startHealthMonitoring() {
	m.stopHealthMonitoring()

	m.mu.Lock()
	done := make(chan struct{})
	m.healthDone = done
	m.mu.Unlock()

	go m.probe(done, m.healthInterval)
}

func (m *Client) probe(done <-chan struct{}, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	was := m.IsHealthy()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		_, err := m.RTT()
		now := err == nil
		switch status := m.Status(); {
		case now && status != StatusConnected:
			m.setStatus(StatusConnected)
		case !now && status == StatusConnected:
			m.setStatus(StatusReconnecting)
		}
		if now != was && m.onHealthChange != nil {
			m.onHealthChange(now)
		}
		was = now
	}
}

func (m *Client) stopHealthMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.healthDone != nil {
		close(m.healthDone)
		m.healthDone = nil
	}
}
