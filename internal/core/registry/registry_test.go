package registry

import (
	"sync"
	"testing"

	"github.com/ClareAI/astra-call-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	r := New()

	s := domain.NewSession("b1", "c1")
	r.Create(s)

	got, ok := r.Get("b1")
	require.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = r.Get("nope")
	assert.False(t, ok)

	assert.Len(t, r.List(), 1)

	r.Remove("b1")
	_, ok = r.Get("b1")
	assert.False(t, ok)
	assert.Empty(t, r.List())
}

func TestFindByLeg(t *testing.T) {
	r := New()
	s := domain.NewSession("b1", "c1")
	require.True(t, s.SetLegB("c2"))
	r.Create(s)

	got, ok := r.FindByLeg("c1")
	require.True(t, ok)
	assert.Equal(t, "b1", got.BridgeID())

	got, ok = r.FindByLeg("c2")
	require.True(t, ok)
	assert.Equal(t, "b1", got.BridgeID())

	_, ok = r.FindByLeg("c3")
	assert.False(t, ok)
}

func TestPendingRemovedWithSession(t *testing.T) {
	r := New()
	r.Create(domain.NewSession("b1", "c1"))
	r.AddPending("c2", "b1")
	r.AddPending("x9", "other")

	bridgeID, ok := r.PendingBridge("c2")
	require.True(t, ok)
	assert.Equal(t, "b1", bridgeID)

	// Removing the session must sweep its pending entries, leaving no
	// orphans, while entries for other sessions survive.
	r.Remove("b1")
	_, ok = r.PendingBridge("c2")
	assert.False(t, ok)
	_, ok = r.PendingBridge("x9")
	assert.True(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := domain.NewSession(string(rune('a'+n%26)), "leg")
			r.Create(s)
			r.AddPending("p", s.BridgeID())
			r.List()
			r.FindByLeg("leg")
			r.Remove(s.BridgeID())
		}(i)
	}
	wg.Wait()
}

func TestSessionFlagsFlipOnce(t *testing.T) {
	s := domain.NewSession("b1", "c1")

	require.True(t, s.MarkJoined())
	assert.False(t, s.MarkJoined(), "joined must flip at most once")

	require.True(t, s.BeginTerminate())
	assert.False(t, s.BeginTerminate(), "terminate must flip at most once")

	// No mutation permitted once terminating.
	assert.False(t, s.SetLegB("c2"))
	assert.Empty(t, s.LegB())
}

func TestMarkJoinedRefusedWhileTerminating(t *testing.T) {
	s := domain.NewSession("b1", "c1")
	require.True(t, s.BeginTerminate())
	assert.False(t, s.MarkJoined())
}
