package session

import (
	"sync"
	"testing"

	"pgregory.net/rapid"
)

// TestRapid_ConcurrentUniqueIDsNeverCollide is the property-based version
// of the "session id uniqueness under concurrent create" invariant: for
// any batch size rapid chooses, minting that many ids and creating them
// concurrently always yields exactly that many stored sessions.
func TestRapid_ConcurrentUniqueIDsNeverCollide(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")

		store := NewStore()
		ids := make([]string, n)
		for i := range ids {
			ids[i] = NewID()
		}

		var wg sync.WaitGroup
		wg.Add(n)
		for _, id := range ids {
			go func(id string) {
				defer wg.Done()
				_, _ = store.Create(id, SourcePolkit, Context{})
			}(id)
		}
		wg.Wait()

		if got := len(store.List()); got != n {
			t.Fatalf("expected %d sessions, got %d", n, got)
		}
	})
}
