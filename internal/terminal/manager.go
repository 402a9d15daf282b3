// Package terminal tracks the lifecycle of MT5 terminal instances run by the
// bridge farm. The bridge registers an instance per linked account and
// heartbeats it; instances that stop reporting go stale and are eventually
// evicted so the pool reflects reality.
package terminal

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInstanceNotFound = errors.New("terminal instance not found")
	ErrPoolFull         = errors.New("terminal pool is full")
	ErrAlreadyRunning   = errors.New("account already has a running terminal")
)

// State is a terminal instance's lifecycle state.
type State string

const (
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateStale        State = "stale"
	StateStopped      State = "stopped"
)

// Instance is one tracked MT5 terminal.
type Instance struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	UserID        string    `json:"userId"`
	State         State     `json:"state"`
	StartedAt     time.Time `json:"startedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Failures      int       `json:"failures"`
}

// Config holds lifecycle tuning for the Manager.
type Config struct {
	MaxInstances     int           // hard cap on tracked terminals
	StaleAfter       time.Duration // missed-heartbeat window before an instance is stale
	EvictAfter       time.Duration // silence window before a stale instance is dropped
	SweepInterval    time.Duration // how often the background sweep runs
	FailureThreshold int           // reported failures before forcing stale
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxInstances:     100,
		StaleAfter:       90 * time.Second,
		EvictAfter:       30 * time.Minute,
		SweepInterval:    30 * time.Second,
		FailureThreshold: 3,
	}
}

// Manager tracks terminal instances and ages them out in the background.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*Instance // instanceID -> instance
	byAccount map[string]string    // accountID -> instanceID

	cfg    Config
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a terminal pool manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = DefaultConfig().MaxInstances
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Manager{
		instances: make(map[string]*Instance),
		byAccount: make(map[string]string),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background sweep goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Stop halts the background sweep and waits for it.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Register tracks a new terminal instance for an account. An account keeps at
// most one live instance; a stale/stopped predecessor is replaced in place.
func (m *Manager) Register(accountID, userID string) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prevID, ok := m.byAccount[accountID]; ok {
		if prev := m.instances[prevID]; prev != nil {
			if prev.State == StateRunning || prev.State == StateProvisioning {
				return nil, ErrAlreadyRunning
			}
			delete(m.instances, prevID)
		}
		delete(m.byAccount, accountID)
	}

	if len(m.instances) >= m.cfg.MaxInstances {
		return nil, ErrPoolFull
	}

	now := time.Now()
	inst := &Instance{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		UserID:        userID,
		State:         StateProvisioning,
		StartedAt:     now,
		LastHeartbeat: now,
	}
	m.instances[inst.ID] = inst
	m.byAccount[accountID] = inst.ID
	log.Printf("[TERMINAL] registered instance %s for account %s", inst.ID, accountID)
	return snapshotOf(inst), nil
}

// Heartbeat marks an instance alive. The first heartbeat moves a
// provisioning instance to running; any heartbeat revives a stale one.
func (m *Manager) Heartbeat(instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	inst.LastHeartbeat = time.Now()
	inst.Failures = 0
	if inst.State != StateStopped {
		inst.State = StateRunning
	}
	return nil
}

// ReportFailure counts a bridge-reported failure; past the threshold the
// instance is forced stale so operators notice before the heartbeat window
// runs out.
func (m *Manager) ReportFailure(instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	inst.Failures++
	if m.cfg.FailureThreshold > 0 && inst.Failures >= m.cfg.FailureThreshold && inst.State == StateRunning {
		inst.State = StateStale
		log.Printf("[TERMINAL] instance %s marked stale after %d failures", instanceID, inst.Failures)
	}
	return nil
}

// Deregister stops tracking an instance (bridge shut the terminal down).
func (m *Manager) Deregister(instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	inst.State = StateStopped
	delete(m.instances, instanceID)
	delete(m.byAccount, inst.AccountID)
	log.Printf("[TERMINAL] deregistered instance %s", instanceID)
	return nil
}

// Get returns a copy of one instance.
func (m *Manager) Get(instanceID string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return snapshotOf(inst), nil
}

// ForUser returns copies of all instances owned by a user.
func (m *Manager) ForUser(userID string) []Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Instance
	for _, inst := range m.instances {
		if inst.UserID == userID {
			out = append(out, *inst)
		}
	}
	return out
}

// PoolStats summarizes the pool for the metrics endpoint.
type PoolStats struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Stale    int `json:"stale"`
	Capacity int `json:"capacity"`
}

// Stats returns current pool statistics.
func (m *Manager) Stats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := PoolStats{Total: len(m.instances), Capacity: m.cfg.MaxInstances}
	for _, inst := range m.instances {
		switch inst.State {
		case StateRunning, StateProvisioning:
			stats.Running++
		case StateStale:
			stats.Stale++
		}
	}
	return stats
}

// sweep ages out silent instances: running→stale after StaleAfter, evicted
// entirely after EvictAfter.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, inst := range m.instances {
		silence := now.Sub(inst.LastHeartbeat)
		if m.cfg.EvictAfter > 0 && silence > m.cfg.EvictAfter {
			delete(m.instances, id)
			delete(m.byAccount, inst.AccountID)
			log.Printf("[TERMINAL] evicted silent instance %s (account %s)", id, inst.AccountID)
			continue
		}
		if m.cfg.StaleAfter > 0 && silence > m.cfg.StaleAfter && inst.State == StateRunning {
			inst.State = StateStale
			log.Printf("[TERMINAL] instance %s stale (no heartbeat for %v)", id, silence.Round(time.Second))
		}
	}
}

func snapshotOf(inst *Instance) *Instance {
	cp := *inst
	return &cp
}
