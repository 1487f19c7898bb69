package core

import (
	"io"
	"testing"
	"time"

	"github.com/openrts/masterserver/internal/proto"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	t.Cleanup(r.Stop)
	return r
}

func mustInboxMessage(t *testing.T, c *Client, timeout time.Duration) proto.Message {
	t.Helper()
	select {
	case m := <-c.Inbox():
		return m
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a message on %s's inbox", c.Name)
		return nil
	}
}

// TestAddClient_DisplacesIncumbent covers invariant 4 and S3: a second
// login under the same name evicts the first, which receives a Logout.
func TestAddClient_DisplacesIncumbent(t *testing.T) {
	r := newTestRegistry(t)

	a := NewClient("alice", "10.0.0.1:1111", io.Discard)
	r.AddClient(a)

	b := NewClient("alice", "10.0.0.2:2222", io.Discard)
	r.AddClient(b)

	msg := mustInboxMessage(t, a, time.Second)
	if _, ok := msg.(*proto.Logout); !ok {
		t.Fatalf("expected incumbent to receive Logout, got %T", msg)
	}

	host, ok := r.ClientHost("alice")
	if !ok || host != b.Host {
		t.Fatalf("expected clients[\"alice\"] to be the displacing client, got host=%q ok=%v", host, ok)
	}
}

// TestRemoveClient_DoesNotEvictDisplacer ensures a displaced session's own
// cleanup (RemoveClient on the old *Client) never deletes the new
// client's entry (the race this test guards against is exactly what
// invariant 4 forbids).
func TestRemoveClient_DoesNotEvictDisplacer(t *testing.T) {
	r := newTestRegistry(t)

	a := NewClient("alice", "10.0.0.1:1111", io.Discard)
	r.AddClient(a)
	b := NewClient("alice", "10.0.0.2:2222", io.Discard)
	r.AddClient(b)

	r.RemoveClient(a)

	host, ok := r.ClientHost("alice")
	if !ok || host != b.Host {
		t.Fatalf("RemoveClient(old) must not evict the displacing client, got host=%q ok=%v", host, ok)
	}
}

// TestCreateAndJoinLobby covers S4: CheckAddGame seeds the host's own
// slot, JoinGame adds a second player.
func TestCreateAndJoinLobby(t *testing.T) {
	r := newTestRegistry(t)
	r.AddClient(NewClient("alice", "h1", io.Discard))
	r.AddClient(NewClient("bob", "h2", io.Discard))

	if err := r.CheckAddGame("alice", "g1", "map1", "ffa", 2); err != nil {
		t.Fatalf("CheckAddGame: %v", err)
	}
	if err := r.JoinGame("bob", "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	snap, ok := r.Snapshot("g1")
	if !ok {
		t.Fatal("expected game g1 to exist")
	}
	if snap.Host != "alice" {
		t.Fatalf("expected alice as host, got %q", snap.Host)
	}
	if _, has := snap.Players["alice"]; !has {
		t.Fatal("invariant 1: host must be in players")
	}
	if _, has := snap.Players["bob"]; !has {
		t.Fatal("expected bob to have joined")
	}
	if len(snap.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(snap.Players))
	}
}

func TestCheckAddGame_NameTaken(t *testing.T) {
	r := newTestRegistry(t)
	r.AddClient(NewClient("alice", "h1", io.Discard))

	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 4); err != nil {
		t.Fatalf("first CheckAddGame: %v", err)
	}
	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 4); err != ErrNameTaken {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestJoinGame_FullAndNotFound(t *testing.T) {
	r := newTestRegistry(t)
	r.AddClient(NewClient("alice", "h1", io.Discard))
	r.AddClient(NewClient("bob", "h2", io.Discard))
	r.AddClient(NewClient("carol", "h3", io.Discard))

	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 1); err != nil {
		t.Fatalf("CheckAddGame: %v", err)
	}

	if err := r.JoinGame("bob", "g1"); err != ErrGameFull {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
	if err := r.JoinGame("carol", "ghost"); err != ErrGameNotFound {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

// TestStartRequiresAllReady covers S5.
func TestStartRequiresAllReady(t *testing.T) {
	r := newTestRegistry(t)
	r.AddClient(NewClient("alice", "h1", io.Discard))
	r.AddClient(NewClient("bob", "h2", io.Discard))

	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 2); err != nil {
		t.Fatalf("CheckAddGame: %v", err)
	}
	if err := r.JoinGame("bob", "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	ready, ok := r.AllReady("g1")
	if !ok || ready {
		t.Fatalf("expected not all ready, got ready=%v ok=%v", ready, ok)
	}

	if err := r.UpdatePlayer("g1", "bob", "x", 1, true); err != nil {
		t.Fatalf("UpdatePlayer bob: %v", err)
	}
	if err := r.UpdatePlayer("g1", "alice", "y", 2, true); err != nil {
		t.Fatalf("UpdatePlayer alice: %v", err)
	}

	ready, ok = r.AllReady("g1")
	if !ok || !ready {
		t.Fatalf("expected all ready, got ready=%v ok=%v", ready, ok)
	}

	hosts, ok := r.HostAddresses("g1")
	if !ok {
		t.Fatal("expected HostAddresses to find g1")
	}
	if hosts["alice"] != "h1" || hosts["bob"] != "h2" {
		t.Fatalf("unexpected host addresses: %+v", hosts)
	}
}

// TestHostLeaveClosesGame covers S6 and invariant 5: when the host
// leaves, the game disappears and every remaining member is notified.
func TestHostLeaveClosesGame(t *testing.T) {
	r := newTestRegistry(t)
	alice := NewClient("alice", "h1", io.Discard)
	bob := NewClient("bob", "h2", io.Discard)
	r.AddClient(alice)
	r.AddClient(bob)

	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 2); err != nil {
		t.Fatalf("CheckAddGame: %v", err)
	}
	if err := r.JoinGame("bob", "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	r.LeaveGame("alice", "g1")

	msg := mustInboxMessage(t, bob, time.Second)
	if _, ok := msg.(*proto.GameClosedByHost); !ok {
		t.Fatalf("expected bob to receive GameClosedByHost, got %T", msg)
	}

	if _, ok := r.Snapshot("g1"); ok {
		t.Fatal("expected g1 to be gone after host left")
	}
}

// TestUpdateGame_CannotLowerCapacityBelowCount covers invariant 6.
func TestUpdateGame_CannotLowerCapacityBelowCount(t *testing.T) {
	r := newTestRegistry(t)
	r.AddClient(NewClient("alice", "h1", io.Discard))
	r.AddClient(NewClient("bob", "h2", io.Discard))

	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 4); err != nil {
		t.Fatalf("CheckAddGame: %v", err)
	}
	if err := r.JoinGame("bob", "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	if err := r.UpdateGame("g1", "m2", "ffa", 1); err != ErrCannotLowerCap {
		t.Fatalf("expected ErrCannotLowerCap, got %v", err)
	}
	if err := r.UpdateGame("g1", "m2", "ffa", 2); err != nil {
		t.Fatalf("expected capacity 2 to be accepted: %v", err)
	}
}

// TestRemoveClient_CascadesLeave covers invariant 3: a disconnecting
// member is removed from every game it was in.
func TestRemoveClient_CascadesLeave(t *testing.T) {
	r := newTestRegistry(t)
	alice := NewClient("alice", "h1", io.Discard)
	bob := NewClient("bob", "h2", io.Discard)
	r.AddClient(alice)
	r.AddClient(bob)

	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 4); err != nil {
		t.Fatalf("CheckAddGame: %v", err)
	}
	if err := r.JoinGame("bob", "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	r.RemoveClient(bob)

	snap, ok := r.Snapshot("g1")
	if !ok {
		t.Fatal("expected g1 to still exist (host did not leave)")
	}
	if _, has := snap.Players["bob"]; has {
		t.Fatal("expected bob to be removed from players on disconnect")
	}
}

// TestBroadcast_ReachesAllMembers covers §4.G.
func TestBroadcast_ReachesAllMembers(t *testing.T) {
	r := newTestRegistry(t)
	alice := NewClient("alice", "h1", io.Discard)
	bob := NewClient("bob", "h2", io.Discard)
	r.AddClient(alice)
	r.AddClient(bob)

	if err := r.CheckAddGame("alice", "g1", "m", "ffa", 4); err != nil {
		t.Fatalf("CheckAddGame: %v", err)
	}
	if err := r.JoinGame("bob", "g1"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	r.Broadcast("g1", &proto.ChatFromThread{Tag: proto.TagChatFromThread, ChatFromTOrign: "alice", ChatFromTContent: "hi"})

	for _, c := range []*Client{alice, bob} {
		msg := mustInboxMessage(t, c, time.Second)
		ct, ok := msg.(*proto.ChatFromThread)
		if !ok || ct.ChatFromTContent != "hi" {
			t.Fatalf("%s did not receive the broadcast chat, got %T", c.Name, msg)
		}
	}
}
