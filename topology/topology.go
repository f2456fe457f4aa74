package topology

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/twmb/murmur3"
	"golang.org/x/exp/slices"

	"github.com/maxpoletaev/treenet/internal/collections"
	"github.com/maxpoletaev/treenet/internal/generic"
)

// AdmitResult describes what happened to an admission attempt.
type AdmitResult uint8

const (
	// Admitted means the node was appended to the children list.
	Admitted AdmitResult = iota + 1

	// AlreadyChild means the node is already one of the children.
	AlreadyChild

	// Full means the children list has reached the fanout limit and the
	// request has to be delegated to one of the children.
	Full

	// Rejected means the node attempted to join itself.
	Rejected
)

func (r AdmitResult) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case AlreadyChild:
		return "already_child"
	case Full:
		return "full"
	case Rejected:
		return "rejected"
	default:
		return ""
	}
}

// Snapshot is a consistent copy of the topology taken under a single lock.
type Snapshot struct {
	Self     Addr
	Parent   Addr
	Children []Addr
	Siblings []Addr
	Joined   bool
}

// Topology is the local view of one node's position in the tree: its parent,
// its children in admission order and the set of its siblings. All methods
// are safe for concurrent use.
type Topology struct {
	mut      sync.Mutex
	self     Addr
	master   Addr
	fanout   int
	parent   Addr
	children []Addr
	siblings collections.Set[Addr]
	joined   bool
	rnd      *rand.Rand

	// Sibling notices received from a node that is not our confirmed parent
	// yet. Each message travels on its own connection, so an add_brother can
	// overtake the connect_confirm sent by the same parent.
	notices map[Addr]collections.Set[Addr]
}

// New creates the topology of a node that has not joined yet. The parent is
// initialized to the master. The master itself is considered joined from
// the start and is its own parent.
func New(self, master Addr, fanout int) *Topology {
	t := &Topology{
		self:     self,
		master:   master,
		fanout:   fanout,
		parent:   master,
		siblings: collections.New[Addr](),
		notices:  make(map[Addr]collections.Set[Addr]),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if self == master {
		t.joined = true
	}

	return t
}

func (t *Topology) Self() Addr {
	return t.self
}

func (t *Topology) Master() Addr {
	return t.master
}

func (t *Topology) Fanout() int {
	return t.fanout
}

// IsMaster returns true if the node is bound to the master address.
func (t *Topology) IsMaster() bool {
	return t.self == t.master
}

func (t *Topology) Parent() Addr {
	t.mut.Lock()
	defer t.mut.Unlock()

	return t.parent
}

// Joined returns true once a parent has confirmed the admission, and false
// again while the node is waiting to be re-admitted.
func (t *Topology) Joined() bool {
	t.mut.Lock()
	defer t.mut.Unlock()

	return t.joined
}

// Children returns a copy of the children list in admission order.
func (t *Topology) Children() []Addr {
	t.mut.Lock()
	defer t.mut.Unlock()

	return t.childrenCopy()
}

// Siblings returns the siblings sorted by address.
func (t *Topology) Siblings() []Addr {
	t.mut.Lock()
	defer t.mut.Unlock()

	return t.sortedSiblings()
}

func (t *Topology) Snapshot() Snapshot {
	t.mut.Lock()
	defer t.mut.Unlock()

	return Snapshot{
		Self:     t.self,
		Parent:   t.parent,
		Children: t.childrenCopy(),
		Siblings: t.sortedSiblings(),
		Joined:   t.joined,
	}
}

func (t *Topology) childrenCopy() []Addr {
	return append(make([]Addr, 0, len(t.children)), t.children...)
}

func (t *Topology) sortedSiblings() []Addr {
	siblings := t.siblings.Values()
	generic.SortBy(siblings, Addr.String)

	return siblings
}

// Admit attempts to append the node to the children list. The capacity check
// and the append happen in the same critical section, so concurrent joins
// can never exceed the fanout. On Admitted, the returned slice holds the
// children as they were before the append: these are the siblings of the new
// child and the nodes that need to be told about it. On AlreadyChild, it holds
// the other children.
func (t *Topology) Admit(addr Addr) (AdmitResult, []Addr) {
	t.mut.Lock()
	defer t.mut.Unlock()

	if addr == t.self {
		return Rejected, nil
	}

	if slices.Contains(t.children, addr) {
		return AlreadyChild, generic.Without(t.children, addr)
	}

	if len(t.children) >= t.fanout {
		return Full, nil
	}

	prev := t.childrenCopy()
	t.children = append(t.children, addr)

	return Admitted, prev
}

// PickChild returns a uniformly random child.
func (t *Topology) PickChild() (Addr, bool) {
	t.mut.Lock()
	defer t.mut.Unlock()

	return generic.Pick(t.rnd, t.children)
}

// Confirm records the admission by the given parent. The sibling set is
// replaced by the confirmed list plus any sibling notices that arrived from
// the same parent ahead of the confirmation.
func (t *Topology) Confirm(parent Addr, siblings []Addr) {
	t.mut.Lock()
	defer t.mut.Unlock()

	set := collections.New(siblings...)
	if early, ok := t.notices[parent]; ok {
		set.Merge(early)
	}

	set.Remove(t.self)
	set.Remove(parent)

	t.parent = parent
	t.siblings = set
	t.joined = true
	t.notices = make(map[Addr]collections.Set[Addr])
}

// AddSibling records a sibling announced by the given parent. It returns true
// if the sibling set was changed right away, and false if the notice was
// ignored or deferred until the sender confirms us as its child. Notices are
// only deferred while the node is waiting for admission; once joined, notices
// from anyone but the parent are dropped.
func (t *Topology) AddSibling(from, sibling Addr) bool {
	t.mut.Lock()
	defer t.mut.Unlock()

	if sibling == t.self || sibling == from {
		return false
	}

	if t.joined {
		if from != t.parent || t.siblings.Has(sibling) {
			return false
		}

		t.siblings.Add(sibling)

		return true
	}

	early, ok := t.notices[from]
	if !ok {
		early = collections.New[Addr]()
		t.notices[from] = early
	}

	early.Add(sibling)

	return false
}

// Remove drops the node from the children list and the sibling set. It
// returns true if the node was known.
func (t *Topology) Remove(addr Addr) bool {
	t.mut.Lock()
	defer t.mut.Unlock()

	removed := t.siblings.Remove(addr)

	if idx := slices.Index(t.children, addr); idx >= 0 {
		t.children = slices.Delete(t.children, idx, idx+1)
		removed = true
	}

	return removed
}

// Detach marks the node as waiting for re-admission, provided that the
// current parent is still the expected one. Children and siblings are kept.
func (t *Topology) Detach(expectedParent Addr) bool {
	t.mut.Lock()
	defer t.mut.Unlock()

	if !t.joined || t.parent != expectedParent || t.self == t.master {
		return false
	}

	t.joined = false

	return true
}

// Digest returns a 64-bit hash of the parent, the ordered children and the
// sibling set. Two nodes with the same view produce the same digest, which
// makes changes easy to spot in the logs and metrics.
func (t *Topology) Digest() uint64 {
	return t.Snapshot().Digest()
}

func (s Snapshot) Digest() uint64 {
	h := murmur3.New64()

	writeAddr := func(a Addr) {
		var port [2]byte
		binary.BigEndian.PutUint16(port[:], a.Port)
		h.Write([]byte(a.Host)) //nolint:errcheck
		h.Write(port[:])        //nolint:errcheck
	}

	writeAddr(s.Parent)

	// Separators keep {children: [a], siblings: []} apart from
	// {children: [], siblings: [a]}.
	h.Write([]byte{0xFF}) //nolint:errcheck

	for _, child := range s.Children {
		writeAddr(child)
	}

	h.Write([]byte{0xFF}) //nolint:errcheck

	for _, sibling := range s.Siblings {
		writeAddr(sibling)
	}

	return h.Sum64()
}
