package graph

import (
	"strings"

	"github.com/emberfall/reckoner/internal/eval"
	"github.com/emberfall/reckoner/internal/model"
)

// NodeKind identifies what a graph node represents.
type NodeKind string

const (
	// KindVariable is a state variable or entity field. Virtual variable
	// nodes stand in for dependencies with no backing row.
	KindVariable NodeKind = "VARIABLE"

	// KindCondition is a condition producing one computed field.
	KindCondition NodeKind = "CONDITION"

	// KindEffect is an effect whose patch writes entity fields.
	KindEffect NodeKind = "EFFECT"
)

// Node is one vertex in the dependency graph. Nodes live in the graph's
// arena and are addressed by index; Key is the stable external identity.
type Node struct {
	Kind NodeKind
	Key  string

	// RefID is the backing row ID. Empty for virtual variable nodes.
	RefID string

	// Scope locates the node's subject: an entity ID for entity-bound
	// rows, or an entity type for class-scoped conditions.
	Scope string

	// EntityType and EntityID identify the subject entity of condition
	// and effect nodes, for translation into cache keys. EntityID is
	// empty for class-scoped conditions.
	EntityType string
	EntityID   string

	// Name is the display name used in cycle reports and logs: the
	// variable key, condition name, or effect ID.
	Name string

	Priority   int
	CreatedSeq int64
	Virtual    bool
}

// VariableNodeKey is the arena key for the variable/field read by path
// within a scope (an entity ID or, for class-scoped rules, an entity type).
func VariableNodeKey(scope, path string) string {
	return "var:" + scope + ":" + path
}

// ConditionNodeKey is the arena key for a condition row.
func ConditionNodeKey(id string) string {
	return "cond:" + id
}

// EffectNodeKey is the arena key for an effect row.
func EffectNodeKey(id string) string {
	return "effect:" + id
}

// Graph is an immutable dependency graph for one campaign+branch.
//
// reads[i] lists the arena indices node i reads (its prerequisites);
// readBy is the reverse adjacency used for invalidation fan-out.
// writes[i] lists the indices an effect node overwrites.
type Graph struct {
	CampaignID string
	BranchID   string

	nodes  []Node
	index  map[string]int
	reads  [][]int
	readBy [][]int
	writes [][]int
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node stored under key, if present.
func (g *Graph) Node(key string) (Node, bool) {
	i, ok := g.index[key]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns all nodes in arena order. The slice is a copy.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Dependents returns every node transitively reachable from the start keys
// by reverse read edges: the set invalidated when those keys change. Start
// nodes themselves are included. Unknown keys contribute nothing. Results
// come back in arena order for determinism.
func (g *Graph) Dependents(startKeys ...string) []Node {
	seen := make([]bool, len(g.nodes))
	var queue []int
	for _, key := range startKeys {
		if i, ok := g.index[key]; ok && !seen[i] {
			seen[i] = true
			queue = append(queue, i)
		}
	}

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range g.readBy[i] {
			if !seen[j] {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}

	var out []Node
	for i, hit := range seen {
		if hit {
			out = append(out, g.nodes[i])
		}
	}
	return out
}

// DependentsOfScope returns the dependents of every variable node whose
// scope matches. Used for entity-level invalidation when the exact changed
// field is unknown.
func (g *Graph) DependentsOfScope(scope string) []Node {
	var keys []string
	for _, n := range g.nodes {
		if n.Kind == KindVariable && n.Scope == scope {
			keys = append(keys, n.Key)
		}
	}
	return g.Dependents(keys...)
}

// WrittenBy returns the variable nodes an effect node overwrites.
func (g *Graph) WrittenBy(effectKey string) []Node {
	i, ok := g.index[effectKey]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(g.writes[i]))
	for _, j := range g.writes[i] {
		out = append(out, g.nodes[j])
	}
	return out
}

// Builder accumulates rows and produces an immutable Graph. Inactive and
// soft-deleted rows must be filtered by the caller; the builder indexes
// whatever it is given.
type Builder struct {
	campaignID string
	branchID   string
	reg        *eval.Registry
	g          *Graph
}

// NewBuilder creates a builder for one campaign+branch. The registry maps
// domain operators to their canonical dependency names during extraction.
func NewBuilder(campaignID, branchID string, reg *eval.Registry) *Builder {
	return &Builder{
		campaignID: campaignID,
		branchID:   branchID,
		reg:        reg,
		g: &Graph{
			CampaignID: campaignID,
			BranchID:   branchID,
			index:      map[string]int{},
		},
	}
}

func (b *Builder) node(key string, n Node) int {
	if i, ok := b.g.index[key]; ok {
		// A concrete row claims a slot a virtual dependency reserved.
		if b.g.nodes[i].Virtual && !n.Virtual {
			n.Key = key
			b.g.nodes[i] = n
		}
		return i
	}
	n.Key = key
	b.g.nodes = append(b.g.nodes, n)
	b.g.reads = append(b.g.reads, nil)
	b.g.readBy = append(b.g.readBy, nil)
	b.g.writes = append(b.g.writes, nil)
	i := len(b.g.nodes) - 1
	b.g.index[key] = i
	return i
}

func (b *Builder) variableNode(scope, path string) int {
	return b.node(VariableNodeKey(scope, path), Node{
		Kind:    KindVariable,
		Scope:   scope,
		Name:    path,
		Virtual: true,
	})
}

func (b *Builder) addRead(from, to int) {
	for _, j := range b.g.reads[from] {
		if j == to {
			return
		}
	}
	b.g.reads[from] = append(b.g.reads[from], to)
	b.g.readBy[to] = append(b.g.readBy[to], from)
}

// AddVariable indexes a state variable. Derived variables contribute read
// edges from their formula; stored variables are plain data nodes.
func (b *Builder) AddVariable(v *model.StateVariable) {
	i := b.node(VariableNodeKey(v.ScopeID, v.Key), Node{
		Kind:       KindVariable,
		RefID:      v.ID,
		Scope:      v.ScopeID,
		Name:       v.Key,
		CreatedSeq: v.CreatedSeq,
	})
	if !v.IsDerived() {
		return
	}
	for _, path := range eval.Reads(v.Formula, b.reg) {
		b.addRead(i, b.variableNode(v.ScopeID, path))
	}
}

// AddCondition indexes a condition. Class-scoped conditions (no entity ID)
// anchor their reads on the entity type instead of a concrete entity.
func (b *Builder) AddCondition(c *model.Condition) {
	scope := c.EntityID
	if scope == "" {
		scope = c.EntityType
	}
	i := b.node(ConditionNodeKey(c.ID), Node{
		Kind:       KindCondition,
		RefID:      c.ID,
		Scope:      scope,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Name:       c.Name,
		Priority:   c.Priority,
		CreatedSeq: c.CreatedSeq,
	})
	if c.Expression == nil {
		return
	}
	for _, path := range eval.Reads(c.Expression, b.reg) {
		b.addRead(i, b.variableNode(scope, path))
	}
}

// AddEffect indexes an effect and its write edges, extracted from the
// patch payload.
func (b *Builder) AddEffect(e *model.Effect) {
	i := b.node(EffectNodeKey(e.ID), Node{
		Kind:       KindEffect,
		RefID:      e.ID,
		Scope:      e.EntityID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Name:       e.ID,
		Priority:   e.Priority,
		CreatedSeq: e.CreatedSeq,
	})
	for _, path := range Writes(e.Payload) {
		j := b.variableNode(e.EntityID, path)
		b.g.writes[i] = append(b.g.writes[i], j)
	}
}

// Build finalizes the graph. A cycle among read edges is a hard failure
// reporting the cycle path.
func (b *Builder) Build() (*Graph, error) {
	b.linkCampaignFallbacks()
	if err := b.g.checkCycles(); err != nil {
		return nil, err
	}
	return b.g, nil
}

// linkCampaignFallbacks adds a read edge from every virtual variable node
// to the campaign variable of the same key, when one exists. Context
// building layers campaign-scoped variables under every entity context,
// so a read anchored at an entity or entity type resolves to the campaign
// value unless a scoped row shadows it; the edge carries campaign
// variable changes through to those readers. Virtual-only: a concrete
// scoped row is the shadow case.
func (b *Builder) linkCampaignFallbacks() {
	for i, n := range b.g.nodes {
		if n.Kind != KindVariable || !n.Virtual {
			continue
		}
		j, ok := b.g.index[VariableNodeKey(b.campaignID, n.Name)]
		if !ok || j == i {
			continue
		}
		b.addRead(i, j)
	}
}

// Writes extracts the set of field paths a patch document overwrites:
// the path of every non-test operation, with the leading JSON-pointer
// slash stripped and nested pointers collapsed to their root field.
// Order-independent and deduplicated.
func Writes(doc model.PatchDoc) []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range doc {
		if op.Op == "test" {
			continue
		}
		path := strings.TrimPrefix(op.Path, "/")
		if i := strings.IndexByte(path, '/'); i >= 0 {
			path = path[:i]
		}
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		out = append(out, path)
	}
	return out
}
