package session_test

import (
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chotrivia/internal/session"
)

func TestRegistry_TryCreate(t *testing.T) {
	r := session.NewRegistry()
	s1 := newSession(t, "Draenor")

	got, err := r.TryCreate("g1", func() (*session.Session, error) { return s1, nil })
	require.NoError(t, err)
	require.Same(t, s1, got)

	called := false
	_, err = r.TryCreate("g1", func() (*session.Session, error) {
		called = true
		return newSession(t, "Khadgar"), nil
	})
	require.ErrorIs(t, err, session.ErrAlreadyActive)
	assert.False(t, called, "factory should not run when a session is active")

	cur, err := r.Get("g1")
	require.NoError(t, err)
	assert.Same(t, s1, cur)

	_, err = r.TryCreate("g2", func() (*session.Session, error) { return newSession(t, "Khadgar"), nil })
	require.NoError(t, err, "other servers are independent")
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_TryCreate_FactoryError(t *testing.T) {
	r := session.NewRegistry()
	boom := stderrors.New("boom")

	_, err := r.TryCreate("g1", func() (*session.Session, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	_, err = r.Get("g1")
	require.ErrorIs(t, err, session.ErrNotFound)

	_, err = r.TryCreate("g1", func() (*session.Session, error) { return newSession(t, "Draenor"), nil })
	require.NoError(t, err, "a failed factory should release the slot")
}

func TestRegistry_TryCreate_Concurrent(t *testing.T) {
	r := session.NewRegistry()

	var (
		wg       sync.WaitGroup
		created  atomic.Int32
		rejected atomic.Int32
		release  = make(chan struct{})
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.TryCreate("g1", func() (*session.Session, error) {
				<-release
				return newSession(t, "Draenor"), nil
			})
			switch {
			case err == nil:
				created.Add(1)
			case stderrors.Is(err, session.ErrAlreadyActive):
				rejected.Add(1)
			}
		}()
	}

	// Other servers are not blocked by the pending creation.
	_, err := r.TryCreate("g2", func() (*session.Session, error) { return newSession(t, "Khadgar"), nil })
	require.NoError(t, err)

	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, 15, rejected.Load())
}

func TestRegistry_Remove(t *testing.T) {
	r := session.NewRegistry()
	s := newSession(t, "Draenor")
	_, err := r.TryCreate("g1", func() (*session.Session, error) { return s, nil })
	require.NoError(t, err)

	assert.True(t, r.IsSameSession("g1", s.ID()))
	assert.False(t, r.IsSameSession("g1", "other"))
	assert.False(t, r.IsSameSession("g2", s.ID()))

	r.Remove("g1")
	r.Remove("g1")
	assert.False(t, r.IsSameSession("g1", s.ID()))
	_, err = r.Get("g1")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestRegistry_RemoveSession(t *testing.T) {
	r := session.NewRegistry()
	old := newSession(t, "Draenor")
	_, err := r.TryCreate("g1", func() (*session.Session, error) { return old, nil })
	require.NoError(t, err)
	r.Remove("g1")

	replacement := newSession(t, "Khadgar")
	_, err = r.TryCreate("g1", func() (*session.Session, error) { return replacement, nil })
	require.NoError(t, err)

	assert.False(t, r.RemoveSession("g1", old.ID()), "stale session must not remove its replacement")
	assert.True(t, r.IsSameSession("g1", replacement.ID()))
	assert.True(t, r.RemoveSession("g1", replacement.ID()))
	assert.Equal(t, 0, r.Len())
}
