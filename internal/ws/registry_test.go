package ws

import "testing"

func testClient(id, userID string) *Client {
	c := newClient(id, nil, nil, nil)
	c.UserID = userID
	return c
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()

	c := testClient("sock-1", "user-a")
	r.Register(c)
	r.Bind(c.UserID, c.ID)

	if r.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", r.ConnectionCount())
	}
	if !r.IsUserConnected("user-a") {
		t.Error("expected user-a to be connected")
	}

	// Re-registering the same socket id is a no-op.
	r.Register(c)
	if r.ConnectionCount() != 1 {
		t.Errorf("duplicate register changed count: %d", r.ConnectionCount())
	}

	if got := r.Unregister("sock-1"); got != c {
		t.Errorf("Unregister returned %v", got)
	}
	if r.ConnectionCount() != 0 || r.UserCount() != 0 {
		t.Errorf("registry leaked: %d connections, %d users",
			r.ConnectionCount(), r.UserCount())
	}
	if r.IsUserConnected("user-a") {
		t.Error("user-a still connected after unregister")
	}

	// Unknown socket returns nil.
	if got := r.Unregister("sock-1"); got != nil {
		t.Errorf("expected nil for unknown socket, got %v", got)
	}
}

func TestRegistryBindUnknownSocket(t *testing.T) {
	r := NewRegistry()

	// Binding a socket that never registered must not index the user.
	r.Bind("user-a", "ghost")
	if r.IsUserConnected("user-a") {
		t.Error("bind of unknown socket indexed the user")
	}
	if r.UserCount() != 0 {
		t.Errorf("expected 0 users, got %d", r.UserCount())
	}
}

func TestRegistryMultipleSocketsPerUser(t *testing.T) {
	r := NewRegistry()

	c1 := testClient("sock-1", "user-a")
	c2 := testClient("sock-2", "user-a")
	for _, c := range []*Client{c1, c2} {
		r.Register(c)
		r.Bind(c.UserID, c.ID)
	}

	if got := len(r.ClientsForUser("user-a")); got != 2 {
		t.Fatalf("expected 2 sockets for user-a, got %d", got)
	}
	if r.UserCount() != 1 {
		t.Errorf("expected 1 distinct user, got %d", r.UserCount())
	}

	// Dropping one tab keeps the user connected.
	r.Unregister("sock-1")
	if !r.IsUserConnected("user-a") {
		t.Error("user disconnected while a socket remains")
	}

	// Dropping the last one removes the user key entirely.
	r.Unregister("sock-2")
	if r.IsUserConnected("user-a") || r.UserCount() != 0 {
		t.Error("user index leaked after last socket closed")
	}
}

func TestRegistryAnonymousSockets(t *testing.T) {
	r := NewRegistry()

	// The trades endpoint may hold sockets the business layer treats as
	// anonymous; they count as connections but never as users.
	c := testClient("sock-1", "")
	r.Register(c)
	r.Bind(c.UserID, c.ID)

	if r.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", r.ConnectionCount())
	}
	if r.UserCount() != 0 {
		t.Errorf("anonymous socket indexed as user: %d", r.UserCount())
	}
}
