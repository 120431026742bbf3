package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_CreateDuplicateRejected(t *testing.T) {
	store := NewStore()

	_, err := store.Create("abc", SourcePolkit, Context{Message: "Authentication is required"})
	require.NoError(t, err)

	_, err = store.Create("abc", SourcePolkit, Context{Message: "second"})
	require.ErrorIs(t, err, ErrDuplicateID)

	require.Len(t, store.List(), 1)
}

func TestStore_GetUpdateRemove(t *testing.T) {
	store := NewStore()
	_, err := store.Create("s1", SourceKeyring, Context{Message: "unlock"})
	require.NoError(t, err)

	sess, ok := store.Get("s1")
	require.True(t, ok)
	require.Equal(t, StateCreated, sess.State)

	err = store.Update("s1", func(s *Session) { s.Info = "hi" })
	require.NoError(t, err)

	sess, _ = store.Get("s1")
	require.Equal(t, "hi", sess.Info)

	require.NoError(t, store.Remove("s1"))
	_, ok = store.Get("s1")
	require.False(t, ok)

	require.ErrorIs(t, store.Remove("s1"), ErrNotFound)
}

func TestStore_HasPending(t *testing.T) {
	store := NewStore()
	require.False(t, store.HasPending())

	_, err := store.Create("s1", SourcePolkit, Context{})
	require.NoError(t, err)
	require.True(t, store.HasPending())

	_, err = store.OnSuccess("s1")
	require.NoError(t, err)
	require.False(t, store.HasPending())
}

func TestStateMachine_PromptThenRespondThenSuccess(t *testing.T) {
	store := NewStore()
	_, err := store.Create("s1", SourcePolkit, Context{})
	require.NoError(t, err)

	ev, err := store.OnPrompt("s1", "Password:", false)
	require.NoError(t, err)
	require.Equal(t, EventUpdated, ev.Kind)
	require.Equal(t, StatePrompting, ev.Session.State)

	require.NoError(t, store.OnRespond("s1"))
	sess, _ := store.Get("s1")
	require.Equal(t, StateAwaiting, sess.State)

	ev, err = store.OnSuccess("s1")
	require.NoError(t, err)
	require.Equal(t, EventClosed, ev.Kind)
	require.Equal(t, ResultSuccess, ev.Session.Result)
}

func TestStateMachine_FailureRetriesThenExhausts(t *testing.T) {
	store := NewStore()
	_, err := store.Create("s1", SourcePolkit, Context{})
	require.NoError(t, err)
	_, err = store.OnPrompt("s1", "Password:", false)
	require.NoError(t, err)

	ev, terminal, err := store.OnFailure("s1", "Authentication failed")
	require.NoError(t, err)
	require.False(t, terminal)
	require.Equal(t, StatePrompting, ev.Session.State)

	ev, terminal, err = store.OnFailure("s1", "Authentication failed")
	require.NoError(t, err)
	require.False(t, terminal)

	ev, terminal, err = store.OnFailure("s1", "Authentication failed")
	require.NoError(t, err)
	require.True(t, terminal)
	require.Equal(t, EventClosed, ev.Kind)
	require.Equal(t, StateFailed, ev.Session.State)
	require.Equal(t, ResultError, ev.Session.Result)
}

func TestStateMachine_TerminalSessionRejectsFurtherUpdates(t *testing.T) {
	store := NewStore()
	_, err := store.Create("s1", SourcePolkit, Context{})
	require.NoError(t, err)
	_, err = store.OnCancel("s1")
	require.NoError(t, err)

	_, err = store.RespondAuthorized("s1")
	require.ErrorIs(t, err, ErrInvalidCookie)
}

func TestStore_RespondUnknownCookie(t *testing.T) {
	store := NewStore()
	_, err := store.RespondAuthorized("nope")
	require.ErrorIs(t, err, ErrInvalidCookie)
}

// TestStore_ConcurrentCreateUniqueIDs grounds the "session id uniqueness
// under concurrent create" round-trip property from the testable
// properties list: many goroutines minting fresh ids and creating
// sessions concurrently must never collide and must never silently drop
// a session.
func TestStore_ConcurrentCreateUniqueIDs(t *testing.T) {
	store := NewStore()
	const n = 200

	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = NewID()
	}

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id string) {
			defer wg.Done()
			_, err := store.Create(id, SourcePolkit, Context{})
			require.NoError(t, err)
		}(ids[i])
	}
	wg.Wait()

	require.Len(t, store.List(), n)
}
