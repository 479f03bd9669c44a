package node

import (
	"sort"
	"sync"
)

// Map holds the configured nodes by name.
type Map struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{nodes: make(map[string]*Node)}
}

// Add registers n under its name, replacing any node with the same name.
func (m *Map) Add(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.Name()] = n
}

// Node returns the node with the given name.
func (m *Map) Node(name string) (*Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[name]
	return n, ok
}

// Nodes returns every node sorted by name.
func (m *Map) Nodes() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Name() < nodes[j].Name()
	})
	return nodes
}
