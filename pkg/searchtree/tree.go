// Package searchtree implements the parent-linked search tree used by the
// beam-search actor: each node owns a generic payload (a cloned workspace,
// the conversation so far, and the files written at that branch) and the
// tree supports trajectory walks and a flat dump/load round-trip.
package searchtree

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Brancher is implemented by payload types that opt into should_branch
// beam-width degradation. A payload that does not implement it is treated
// as should_branch=false.
type Brancher interface {
	ShouldBranch() bool
}

// Node is a generic, parent-linked node. Children are appended in
// task-completion order and never reordered. A node is never mutated after
// its completion message is appended by the caller into Data.
type Node[T any] struct {
	mu       sync.RWMutex
	id       string
	parent   *Node[T]
	children []*Node[T]
	depth    int
	isLeaf   bool

	// Data is the per-branch payload (workspace handle, messages, local
	// file writes). It is exported so callers can mutate it in place while
	// the node is still a leaf under construction.
	Data T
}

// ID returns the node's unique identifier.
func (n *Node[T]) ID() string { return n.id }

// Depth returns the node's depth, root=0.
func (n *Node[T]) Depth() int { return n.depth }

// IsLeaf reports whether the node currently has no children.
func (n *Node[T]) IsLeaf() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isLeaf
}

// Parent returns the node's parent, or nil for the root.
func (n *Node[T]) Parent() *Node[T] { return n.parent }

// Children returns a snapshot of the node's ordered children.
func (n *Node[T]) Children() []*Node[T] {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node[T], len(n.children))
	copy(out, n.children)
	return out
}

// ShouldBranch reports the should_branch flag carried by Data, defaulting to
// false when the payload type does not implement Brancher.
func (n *Node[T]) ShouldBranch() bool {
	if b, ok := any(n.Data).(Brancher); ok {
		return b.ShouldBranch()
	}
	return false
}

// Trajectory returns the ordered path from the tree root to this node
// (inclusive).
func (n *Node[T]) Trajectory() []*Node[T] {
	var rev []*Node[T]
	for cur := n; cur != nil; cur = cur.parent {
		rev = append(rev, cur)
	}
	out := make([]*Node[T], len(rev))
	for i, node := range rev {
		out[len(rev)-1-i] = node
	}
	return out
}

// AllChildren returns every descendant of this node, depth-first,
// pre-order, not including the node itself.
func (n *Node[T]) AllChildren() []*Node[T] {
	var out []*Node[T]
	var walk func(*Node[T])
	walk = func(cur *Node[T]) {
		for _, c := range cur.Children() {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

// Tree owns every node reachable from its root and is the only place new
// nodes may be created, so ids stay unique and parent/child links stay
// consistent under concurrent expansion.
type Tree[T any] struct {
	mu    sync.RWMutex
	nodes map[string]*Node[T]
	root  *Node[T]
}

// NewTree creates a tree with a single root node holding rootData.
func NewTree[T any](rootData T) *Tree[T] {
	root := &Node[T]{id: uuid.NewString(), depth: 0, isLeaf: true, Data: rootData}
	return &Tree[T]{
		nodes: map[string]*Node[T]{root.id: root},
		root:  root,
	}
}

// Root returns the tree's root node.
func (t *Tree[T]) Root() *Node[T] { return t.root }

// Node looks up a node by id.
func (t *Tree[T]) Node(id string) (*Node[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// AddChild appends a new child to parent, holding data, and returns it.
// parent stops being a leaf once the first child is attached.
func (t *Tree[T]) AddChild(parent *Node[T], data T) *Node[T] {
	child := &Node[T]{
		id:     uuid.NewString(),
		parent: parent,
		depth:  parent.depth + 1,
		isLeaf: true,
		Data:   data,
	}

	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.isLeaf = false
	parent.mu.Unlock()

	t.mu.Lock()
	t.nodes[child.id] = child
	t.mu.Unlock()

	return child
}

// Record is the flat, serialisable representation of one node used by
// Dump/Load. Parent is empty for the root.
type Record[T any] struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
	Data   T      `json:"data"`
}

// Dump walks the tree depth-first from the root and returns a flat,
// deterministic record list suitable for JSON persistence.
func (t *Tree[T]) Dump() []Record[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]Record[T], 0, len(t.nodes))
	var walk func(*Node[T])
	walk = func(n *Node[T]) {
		parentID := ""
		if n.parent != nil {
			parentID = n.parent.id
		}
		records = append(records, Record[T]{ID: n.id, Parent: parentID, Data: n.Data})
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return records
}

// Load reconstructs a Tree from a flat record list produced by Dump.
// Re-cloning of per-node workspaces from the parent's workspace plus local
// file writes is the caller's responsibility (callers typically call Load
// with a payload type whose zero-ish reconstruction they drive themselves,
// then mutate Data in place node by node).
func Load[T any](records []Record[T]) (*Tree[T], error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("searchtree: cannot load an empty record set")
	}

	nodes := make(map[string]*Node[T], len(records))
	for _, r := range records {
		nodes[r.ID] = &Node[T]{id: r.ID, isLeaf: true, Data: r.Data}
	}

	var root *Node[T]
	for _, r := range records {
		n := nodes[r.ID]
		if r.Parent == "" {
			if root != nil {
				return nil, fmt.Errorf("searchtree: multiple roots found (%q and %q)", root.id, n.id)
			}
			root = n
			continue
		}
		parent, ok := nodes[r.Parent]
		if !ok {
			return nil, fmt.Errorf("searchtree: node %q references unknown parent %q", r.ID, r.Parent)
		}
		n.parent = parent
		parent.children = append(parent.children, n)
		parent.isLeaf = false
	}
	if root == nil {
		return nil, fmt.Errorf("searchtree: no root (node with empty parent) found")
	}

	var assignDepth func(*Node[T], int)
	assignDepth = func(n *Node[T], depth int) {
		n.depth = depth
		for _, c := range n.children {
			assignDepth(c, depth+1)
		}
	}
	assignDepth(root, 0)

	return &Tree[T]{nodes: nodes, root: root}, nil
}
