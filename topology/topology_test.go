package topology

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	master = Addr{Host: "localhost", Port: 7777}
	nodeA  = Addr{Host: "localhost", Port: 8001}
	nodeB  = Addr{Host: "localhost", Port: 8002}
	nodeC  = Addr{Host: "localhost", Port: 8003}
	nodeD  = Addr{Host: "localhost", Port: 8004}
)

func TestNew(t *testing.T) {
	topo := New(nodeA, master, 5)
	snap := topo.Snapshot()

	assert.Equal(t, nodeA, snap.Self)
	assert.Equal(t, master, snap.Parent)
	assert.Empty(t, snap.Children)
	assert.Empty(t, snap.Siblings)
	assert.False(t, snap.Joined)
	assert.False(t, topo.IsMaster())

	m := New(master, master, 5)
	assert.True(t, m.IsMaster())
	assert.True(t, m.Joined())
	assert.Equal(t, master, m.Parent())
}

func TestTopology_Admit(t *testing.T) {
	topo := New(master, master, 2)

	res, prev := topo.Admit(nodeA)
	require.Equal(t, Admitted, res)
	assert.Empty(t, prev)

	res, prev = topo.Admit(nodeB)
	require.Equal(t, Admitted, res)
	assert.Equal(t, []Addr{nodeA}, prev)

	res, prev = topo.Admit(nodeC)
	require.Equal(t, Full, res)
	assert.Nil(t, prev)

	assert.Equal(t, []Addr{nodeA, nodeB}, topo.Children())
}

func TestTopology_Admit_Duplicate(t *testing.T) {
	topo := New(master, master, 3)

	topo.Admit(nodeA)
	topo.Admit(nodeB)

	res, others := topo.Admit(nodeA)
	require.Equal(t, AlreadyChild, res)
	assert.Equal(t, []Addr{nodeB}, others)
	assert.Equal(t, []Addr{nodeA, nodeB}, topo.Children())
}

func TestTopology_Admit_Self(t *testing.T) {
	topo := New(master, master, 3)

	res, _ := topo.Admit(master)
	assert.Equal(t, Rejected, res)
	assert.Empty(t, topo.Children())
}

func TestTopology_Admit_Concurrent(t *testing.T) {
	const (
		fanout  = 5
		joiners = 100
	)

	topo := New(master, master, fanout)

	var (
		wg       sync.WaitGroup
		mut      sync.Mutex
		admitted int
	)

	wg.Add(joiners)

	for i := 0; i < joiners; i++ {
		go func(i int) {
			defer wg.Done()

			addr := Addr{Host: "localhost", Port: uint16(9000 + i)}
			if res, _ := topo.Admit(addr); res == Admitted {
				mut.Lock()
				admitted++
				mut.Unlock()
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, fanout, admitted)
	assert.Len(t, topo.Children(), fanout)
}

func TestTopology_PickChild(t *testing.T) {
	topo := New(master, master, 3)

	_, ok := topo.PickChild()
	require.False(t, ok)

	topo.Admit(nodeA)
	topo.Admit(nodeB)

	seen := make(map[Addr]bool)
	for i := 0; i < 200; i++ {
		child, ok := topo.PickChild()
		require.True(t, ok)
		seen[child] = true
	}

	assert.Equal(t, map[Addr]bool{nodeA: true, nodeB: true}, seen)
}

func TestTopology_Confirm(t *testing.T) {
	topo := New(nodeC, master, 5)

	topo.Confirm(master, []Addr{nodeA, nodeB, nodeC})

	snap := topo.Snapshot()
	assert.True(t, snap.Joined)
	assert.Equal(t, master, snap.Parent)
	assert.Equal(t, []Addr{nodeA, nodeB}, snap.Siblings)
}

func TestTopology_Confirm_ReplacesSiblings(t *testing.T) {
	topo := New(nodeC, master, 5)
	topo.Confirm(nodeD, []Addr{nodeA})

	topo.Confirm(master, nil)

	assert.Empty(t, topo.Siblings())
	assert.Equal(t, master, topo.Parent())
}

func TestTopology_AddSibling(t *testing.T) {
	topo := New(nodeA, master, 5)
	topo.Confirm(master, nil)

	assert.True(t, topo.AddSibling(master, nodeB))
	assert.False(t, topo.AddSibling(master, nodeB), "already known")
	assert.False(t, topo.AddSibling(master, nodeA), "self is never a sibling")

	assert.Equal(t, []Addr{nodeB}, topo.Siblings())
}

func TestTopology_AddSibling_BeforeConfirm(t *testing.T) {
	topo := New(nodeA, master, 5)

	// The notice overtakes the confirmation sent by the same parent.
	assert.False(t, topo.AddSibling(nodeD, nodeB))
	assert.Empty(t, topo.Siblings())

	// A notice from some other node must not leak into the sibling set.
	topo.AddSibling(nodeC, nodeC)
	topo.AddSibling(master, nodeC)

	topo.Confirm(nodeD, nil)

	assert.Equal(t, nodeD, topo.Parent())
	assert.Equal(t, []Addr{nodeB}, topo.Siblings())
}

func TestTopology_AddSibling_FromStrangerWhenJoined(t *testing.T) {
	topo := New(nodeA, master, 5)
	topo.Confirm(master, nil)

	assert.False(t, topo.AddSibling(nodeD, nodeB))
	assert.Empty(t, topo.Siblings())

	// Moving under the same node later must not bring the old notice back.
	require.True(t, topo.Detach(master))
	topo.Confirm(nodeD, nil)

	assert.Equal(t, nodeD, topo.Parent())
	assert.Empty(t, topo.Siblings())
}

func TestTopology_Remove(t *testing.T) {
	topo := New(master, master, 5)
	topo.Admit(nodeA)
	topo.Admit(nodeB)
	topo.Admit(nodeC)

	assert.True(t, topo.Remove(nodeB))
	assert.False(t, topo.Remove(nodeB))
	assert.Equal(t, []Addr{nodeA, nodeC}, topo.Children())
}

func TestTopology_Detach(t *testing.T) {
	topo := New(nodeA, master, 5)

	assert.False(t, topo.Detach(master), "not joined yet")

	topo.Confirm(nodeB, []Addr{nodeC})
	topo.Admit(nodeD)

	assert.False(t, topo.Detach(master), "parent has changed")
	assert.True(t, topo.Detach(nodeB))
	assert.False(t, topo.Detach(nodeB), "already detached")

	snap := topo.Snapshot()
	assert.False(t, snap.Joined)
	assert.Equal(t, nodeB, snap.Parent)
	assert.Equal(t, []Addr{nodeD}, snap.Children)
	assert.Equal(t, []Addr{nodeC}, snap.Siblings)

	m := New(master, master, 5)
	assert.False(t, m.Detach(master))
}

func TestTopology_Digest(t *testing.T) {
	t1 := New(master, master, 5)
	t2 := New(master, master, 5)

	require.Equal(t, t1.Digest(), t2.Digest())

	t1.Admit(nodeA)
	assert.NotEqual(t, t1.Digest(), t2.Digest())

	t2.Admit(nodeA)
	assert.Equal(t, t1.Digest(), t2.Digest())
	assert.Equal(t, t1.Digest(), t1.Snapshot().Digest())

	t1.Admit(nodeB)
	t2.Confirm(master, []Addr{nodeB})
	assert.NotEqual(t, t1.Digest(), t2.Digest())
}

func TestAdmitResult_String(t *testing.T) {
	for res, want := range map[AdmitResult]string{
		Admitted:     "admitted",
		AlreadyChild: "already_child",
		Full:         "full",
		Rejected:     "rejected",
	} {
		assert.Equal(t, want, fmt.Sprint(res))
	}
}
