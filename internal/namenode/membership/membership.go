// Package membership tracks the live storage nodes: identifier assignment,
// heartbeat bookkeeping, and the round-robin placement cursor.
package membership

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lexfs/lexfs/internal/wire"
)

var ErrFull = errors.New("too many storage servers")

// Node is one registered storage node.
type Node struct {
	ID          int
	IP          string
	ControlPort int
	ClientPort  int
	LastSeen    time.Time
}

// Registry holds the membership list. Identifiers are monotonic and never
// reused, so a node that fails and re-registers is distinguishable in logs.
type Registry struct {
	mu     sync.Mutex
	nodes  map[int]*Node
	nextID int
	cursor int

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[int]*Node),
		now:   time.Now,
	}
}

// Register admits a node and assigns the next identifier.
func (r *Registry) Register(ip string, controlPort, clientPort int) (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.nodes) >= wire.MaxStorageNodes {
		return Node{}, ErrFull
	}

	n := &Node{
		ID:          r.nextID,
		IP:          ip,
		ControlPort: controlPort,
		ClientPort:  clientPort,
		LastSeen:    r.now(),
	}
	r.nextID++
	r.nodes[n.ID] = n
	return *n, nil
}

// Touch records traffic from a node, resetting its liveness clock.
func (r *Registry) Touch(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[id]; ok {
		n.LastSeen = r.now()
	}
}

// Remove drops a node from the membership list.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

// Get returns a copy of the node record.
func (r *Registry) Get(id int) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Pick selects the placement target for a new file: round-robin over the
// current membership in identifier order.
func (r *Registry) Pick() (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.sortedIDs()
	if len(ids) == 0 {
		return Node{}, false
	}

	id := ids[r.cursor%len(ids)]
	r.cursor++
	return *r.nodes[id], true
}

// Expired returns the nodes silent for longer than grace.
func (r *Registry) Expired(grace time.Duration) []Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-grace)
	var out []Node
	for _, n := range r.nodes {
		if n.LastSeen.Before(cutoff) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns the membership list in identifier order.
func (r *Registry) All() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Node, 0, len(r.nodes))
	for _, id := range r.sortedIDs() {
		out = append(out, *r.nodes[id])
	}
	return out
}

// Count returns the live node count.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

func (r *Registry) sortedIDs() []int {
	ids := make([]int, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
