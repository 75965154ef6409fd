package server

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
)

type stubPeer struct {
	id string
}

func newStubPeer(id string) *stubPeer { return &stubPeer{id: id} }

func (p *stubPeer) ID() string         { return p.id }
func (p *stubPeer) Send(_ []byte) bool { return true }

func TestRegistryAddAndCount(t *testing.T) {
	r := NewRegistry()

	r.Add(newStubPeer("a"))
	r.Add(newStubPeer("b"))
	r.Add(newStubPeer("a")) // overwrite, not a second entry

	if got := r.Count(); got != 2 {
		t.Errorf("Expected count 2, got %d", got)
	}

	r.Add(nil)
	if got := r.Count(); got != 2 {
		t.Errorf("Adding nil peer changed count to %d", got)
	}
}

// TestRegistryIdempotentRemoval verifies removing twice, or removing an id
// that was never added, never changes the count a second time.
func TestRegistryIdempotentRemoval(t *testing.T) {
	r := NewRegistry()
	r.Add(newStubPeer("a"))
	r.Add(newStubPeer("b"))
	r.SetUsername("a", "alice")

	name, registered := r.Remove("a")
	if !registered || name != "alice" {
		t.Errorf("Remove returned (%q, %v), want (\"alice\", true)", name, registered)
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Expected count 1 after removal, got %d", got)
	}

	if _, registered := r.Remove("a"); registered {
		t.Error("Second removal reported a registered username")
	}
	r.Remove("never-added")

	if got := r.Count(); got != 1 {
		t.Errorf("Expected count to stay 1, got %d", got)
	}
	if names := r.Usernames(); len(names) != 0 {
		t.Errorf("Expected empty roster, got %v", names)
	}
}

func TestRegistryDefaultUsername(t *testing.T) {
	const id = "3f9a7c21-0000-4000-8000-000000000000"
	r := NewRegistry()
	r.Add(newStubPeer(id))

	got := r.SetUsername(id, "")
	if got != "User_3f9a7c" {
		t.Errorf("Expected synthesized name User_3f9a7c, got %q", got)
	}

	names := r.Usernames()
	if len(names) != 1 || names[0] != "User_3f9a7c" {
		t.Errorf("Expected roster [User_3f9a7c], got %v", names)
	}
}

func TestDefaultUsernameShortID(t *testing.T) {
	if got := DefaultUsername("ab"); got != "User_ab" {
		t.Errorf("Expected User_ab, got %q", got)
	}
}

func TestRegistryRosterOrderAndOverwrite(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Add(newStubPeer(id))
	}

	r.SetUsername("b", "bob")
	r.SetUsername("a", "alice")
	r.SetUsername("c", "carol")
	r.SetUsername("b", "robert")
	// "d" never registers and stays out of the roster.

	want := []string{"robert", "alice", "carol"}
	if got := r.Usernames(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected roster %v, got %v", want, got)
	}
	if got := r.Count(); got != 4 {
		t.Errorf("Expected 4 tracked connections, got %d", got)
	}
}

func TestRegistryDuplicateUsernamesAllowed(t *testing.T) {
	r := NewRegistry()
	r.Add(newStubPeer("a"))
	r.Add(newStubPeer("b"))
	r.SetUsername("a", "sam")
	r.SetUsername("b", "sam")

	want := []string{"sam", "sam"}
	if got := r.Usernames(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRegistrySetUsernameUntracked(t *testing.T) {
	r := NewRegistry()

	if got := r.SetUsername("ghost", "casper"); got != "casper" {
		t.Errorf("Expected resolved name casper, got %q", got)
	}
	if _, ok := r.Username("ghost"); ok {
		t.Error("Untracked connection should not gain a username")
	}
	if names := r.Usernames(); len(names) != 0 {
		t.Errorf("Expected empty roster, got %v", names)
	}
}

func TestRegistryPeersSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add(newStubPeer("a"))
	r.Add(newStubPeer("b"))
	r.Add(newStubPeer("c"))
	r.Remove("b")

	peers := r.Peers()
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID())
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected snapshot %v, got %v", want, ids)
	}

	r.Add(newStubPeer("d"))
	if len(peers) != 2 {
		t.Error("Snapshot changed after a later Add")
	}

	if _, ok := r.Peer("b"); ok {
		t.Error("Removed peer still resolvable")
	}
	if p, ok := r.Peer("d"); !ok || p.ID() != "d" {
		t.Error("Expected to resolve peer d")
	}
}

// TestRegistryConcurrentMutation interleaves add, set_username and remove
// across goroutines and checks the settled state.
func TestRegistryConcurrentMutation(t *testing.T) {
	const n = 200
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%03d", i)
			r.Add(newStubPeer(id))
			r.SetUsername(id, "")
			if i%2 == 0 {
				r.Remove(id)
				r.Remove(id)
			}
		}(i)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = r.Count()
					_ = r.Usernames()
					_ = r.Peers()
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	if got := r.Count(); got != n/2 {
		t.Errorf("Expected %d connections, got %d", n/2, got)
	}

	names := r.Usernames()
	if len(names) != n/2 {
		t.Fatalf("Expected %d usernames, got %d", n/2, len(names))
	}
	for _, p := range r.Peers() {
		name, ok := r.Username(p.ID())
		if !ok {
			t.Errorf("Tracked connection %s has no username", p.ID())
			continue
		}
		if !strings.HasPrefix(name, "User_conn-") {
			t.Errorf("Unexpected synthesized name %q for %s", name, p.ID())
		}
	}
}
