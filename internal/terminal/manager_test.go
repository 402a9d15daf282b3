package terminal

import (
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxInstances:     3,
		StaleAfter:       50 * time.Millisecond,
		EvictAfter:       150 * time.Millisecond,
		SweepInterval:    10 * time.Millisecond,
		FailureThreshold: 3,
	}
}

func TestRegisterOneInstancePerAccount(t *testing.T) {
	m := NewManager(testConfig())

	inst, err := m.Register("acct-1", "user-a")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if inst.State != StateProvisioning {
		t.Errorf("expected provisioning state, got %s", inst.State)
	}

	// A second terminal for the same account is refused while one lives.
	if _, err := m.Register("acct-1", "user-a"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	// After a clean shutdown the slot opens up again.
	if err := m.Deregister(inst.ID); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	if _, err := m.Register("acct-1", "user-a"); err != nil {
		t.Errorf("re-register after deregister failed: %v", err)
	}
}

func TestRegisterPoolCapacity(t *testing.T) {
	m := NewManager(testConfig())

	for i, acct := range []string{"acct-1", "acct-2", "acct-3"} {
		if _, err := m.Register(acct, "user-a"); err != nil {
			t.Fatalf("Register %d failed: %v", i, err)
		}
	}
	if _, err := m.Register("acct-4", "user-a"); !errors.Is(err, ErrPoolFull) {
		t.Errorf("expected ErrPoolFull, got %v", err)
	}

	stats := m.Stats()
	if stats.Total != 3 || stats.Capacity != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHeartbeatLifecycle(t *testing.T) {
	m := NewManager(testConfig())

	inst, err := m.Register("acct-1", "user-a")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// First heartbeat moves provisioning to running.
	if err := m.Heartbeat(inst.ID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	got, err := m.Get(inst.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != StateRunning {
		t.Errorf("expected running, got %s", got.State)
	}

	if err := m.Heartbeat("ghost"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestFailureThresholdForcesStale(t *testing.T) {
	m := NewManager(testConfig())

	inst, _ := m.Register("acct-1", "user-a")
	m.Heartbeat(inst.ID)

	for i := 0; i < 3; i++ {
		if err := m.ReportFailure(inst.ID); err != nil {
			t.Fatalf("ReportFailure %d failed: %v", i, err)
		}
	}
	got, _ := m.Get(inst.ID)
	if got.State != StateStale {
		t.Errorf("expected stale after threshold, got %s", got.State)
	}
	if got.Failures != 3 {
		t.Errorf("expected 3 failures, got %d", got.Failures)
	}

	// A heartbeat revives the instance and clears the failure count.
	m.Heartbeat(inst.ID)
	got, _ = m.Get(inst.ID)
	if got.State != StateRunning || got.Failures != 0 {
		t.Errorf("heartbeat did not revive instance: %+v", got)
	}
}

func TestSweepAgesOutSilentInstances(t *testing.T) {
	m := NewManager(testConfig())

	inst, _ := m.Register("acct-1", "user-a")
	m.Heartbeat(inst.ID)

	// Past StaleAfter the instance goes stale.
	time.Sleep(70 * time.Millisecond)
	m.sweep()
	got, err := m.Get(inst.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != StateStale {
		t.Errorf("expected stale, got %s", got.State)
	}

	// Past EvictAfter it is dropped entirely and the account slot frees up.
	time.Sleep(120 * time.Millisecond)
	m.sweep()
	if _, err := m.Get(inst.ID); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected eviction, got %v", err)
	}
	if _, err := m.Register("acct-1", "user-a"); err != nil {
		t.Errorf("account slot not freed after eviction: %v", err)
	}
}

func TestForUserFiltersByOwner(t *testing.T) {
	m := NewManager(testConfig())

	m.Register("acct-1", "user-a")
	m.Register("acct-2", "user-a")
	m.Register("acct-3", "user-b")

	if got := len(m.ForUser("user-a")); got != 2 {
		t.Errorf("expected 2 instances for user-a, got %d", got)
	}
	if got := len(m.ForUser("ghost")); got != 0 {
		t.Errorf("expected 0 instances for ghost, got %d", got)
	}
}
