package task

import "sync"

// NodeType classifies an OrgChart node as a leaf unit of work or a
// composite that was decomposed into children.
type NodeType string

const (
	NodeComposite NodeType = "composite"
	NodeLeaf      NodeType = "leaf"
)

// OrgChartNode mirrors one task in the observability tree.
type OrgChartNode struct {
	ID          string
	ParentID    string
	Type        NodeType
	Description string
	Depth       int
	HasSteward  bool
	Children    []string
}

// OrgChart is a tree of tasks keyed by identity, for observability only.
// Parent links are stored by identity rather than by pointer so nodes can
// be added/read concurrently without aliasing concerns.
type OrgChart struct {
	mu    sync.Mutex
	nodes map[string]*OrgChartNode
	root  string
}

// NewOrgChart constructs an empty chart.
func NewOrgChart() *OrgChart {
	return &OrgChart{nodes: make(map[string]*OrgChartNode)}
}

// AddRoot registers the root task. Depth is always 0 for the root.
func (c *OrgChart) AddRoot(id, description string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = id
	c.nodes[id] = &OrgChartNode{ID: id, Type: NodeLeaf, Description: description, Depth: 0}
}

// AddChild registers a new node and appends it to its parent's child list.
func (c *OrgChart) AddChild(parentID, id, description string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[id] = &OrgChartNode{ID: id, ParentID: parentID, Type: NodeLeaf, Description: description, Depth: depth}
	if p, ok := c.nodes[parentID]; ok {
		p.Children = append(p.Children, id)
	}
}

// MarkComposite labels a node composite, optionally flagging it as having a
// steward watching its QA cycle (only ever true at depth 0 per §4.6).
func (c *OrgChart) MarkComposite(id string, hasSteward bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[id]; ok {
		n.Type = NodeComposite
		n.HasSteward = hasSteward
	}
}

// Node returns a copy of the node for id, if present.
func (c *OrgChart) Node(id string) (OrgChartNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[id]
	if !ok {
		return OrgChartNode{}, false
	}
	return *n, true
}

// Root returns the root task identity.
func (c *OrgChart) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}
