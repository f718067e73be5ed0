// core/graph.go
package core

import (
	"sync"

	"github.com/signalsfoundry/lidar-simulator/model"
)

// Node is one named stage in a sensor's processing graph. Its name and kind
// are fixed for the sensor's lifetime; parameters and the active flag mutate
// freely. An inactive node is skipped during execution but keeps its wiring
// and last-set parameters, so re-activation resumes where it left off.
type Node struct {
	name   string
	kind   NodeKind
	params any
	active bool
}

func (n *Node) Name() string   { return n.name }
func (n *Node) Kind() NodeKind { return n.kind }
func (n *Node) Active() bool   { return n.active }
func (n *Node) Params() any    { return n.params }

// Graph is an ordered sequence of nodes plus zero or more child graphs
// consuming its terminal output (a fan-out DAG, not a single chain). It is
// constructed once per sensor activation; all reconfiguration afterwards is
// in-place parameter and activation mutation, never a rebuild.
type Graph struct {
	name string
	exec *Executor

	mu       sync.Mutex
	nodes    []*Node
	byName   map[string]*Node
	children []*Graph
	parent   *Graph

	// Terminal output of the most recent completed run, and the done
	// channel of the run currently in flight. Readers pull: Output blocks
	// on inflight, so issuing work never waits for completion.
	inflight <-chan struct{}
	output   *model.PointCloud
}

// NewGraph constructs an empty graph. The executor may be nil on child
// graphs; execution is always issued through the root.
func NewGraph(name string, exec *Executor) *Graph {
	return &Graph{
		name:   name,
		exec:   exec,
		byName: make(map[string]*Node),
	}
}

// Name returns the graph's identity, used in error reporting.
func (g *Graph) Name() string { return g.name }

// Append adds a node at the end of the local sequence, active by default.
// A name already present in this graph is a structure error.
func (g *Graph) Append(name string, kind NodeKind, params any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.byName[name]; exists {
		return &GraphStructureError{Graph: g.name, Node: name, Err: ErrDuplicateNode}
	}
	n := &Node{name: name, kind: kind, params: params, active: true}
	g.nodes = append(g.nodes, n)
	g.byName[name] = n
	return nil
}

// Update replaces a node's parameters in place. It is idempotent: calling it
// every tick with unchanged values accumulates no state.
func (g *Graph) Update(name string, params any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.byName[name]
	if !ok {
		return &GraphStructureError{Graph: g.name, Node: name, Err: ErrUnknownNode}
	}
	n.params = params
	return nil
}

// SetActive toggles whether a node participates in execution. Parameters are
// retained across deactivation.
func (g *Graph) SetActive(name string, active bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.byName[name]
	if !ok {
		return &GraphStructureError{Graph: g.name, Node: name, Err: ErrUnknownNode}
	}
	n.active = active
	return nil
}

// HasNode reports whether a node exists in this graph. It guards updates of
// optional-feature nodes that may not have been appended.
func (g *Graph) HasNode(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.byName[name]
	return ok
}

// Node returns the named node for inspection, or nil.
func (g *Graph) Node(name string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byName[name]
}

// Connect wires child to consume g's terminal output. A graph may feed
// multiple children; connecting a graph as its own ancestor is refused.
func (g *Graph) Connect(child *Graph) error {
	if child == nil {
		return &GraphStructureError{Graph: g.name, Err: ErrCyclicConnect}
	}
	for a := g; a != nil; a = a.parent {
		if a == child {
			return &GraphStructureError{Graph: g.name, Err: ErrCyclicConnect}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	child.parent = g
	g.children = append(g.children, child)
	return nil
}

// Root walks up to the graph that owns execution.
func (g *Graph) Root() *Graph {
	r := g
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Execute enqueues one run of the whole DAG rooted at this graph and returns
// without waiting for completion. Completion is observed when a consumer
// pulls a terminal Output, letting multiple sensors' runs overlap in flight.
func (g *Graph) Execute(cap CaptureContext) error {
	root := g.Root()
	if root.exec == nil || root.exec.scene == nil {
		return &ConfigurationError{Sensor: cap.Sensor, Err: ErrMissingScene}
	}
	root.exec.run(root, cap)
	return nil
}

// Output returns this graph's terminal point cloud, waiting for any run in
// flight. Nil before the first completed run.
func (g *Graph) Output() *model.PointCloud {
	g.mu.Lock()
	wait := g.inflight
	g.mu.Unlock()
	if wait != nil {
		<-wait
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.output
}

// snapshot copies the graph's active node parameters and topology so the
// asynchronous run works on an isolated view. Graphs are read-then-issued;
// nothing mutates them mid-execution, but the snapshot keeps the next tick's
// updates from leaking into a still-running trace.
func (g *Graph) snapshot(wait <-chan struct{}) *graphPlan {
	g.mu.Lock()
	defer g.mu.Unlock()

	plan := &graphPlan{graph: g, name: g.name}
	for _, n := range g.nodes {
		if !n.active {
			continue
		}
		plan.stages = append(plan.stages, stage{kind: n.kind, params: n.params})
	}
	for _, c := range g.children {
		plan.children = append(plan.children, c.snapshot(wait))
	}
	g.inflight = wait
	return plan
}

// complete records the resolved terminal output for this run.
func (g *Graph) complete(cloud *model.PointCloud) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.output = cloud
}

type stage struct {
	kind   NodeKind
	params any
}

type graphPlan struct {
	graph    *Graph
	name     string
	stages   []stage
	children []*graphPlan
}
