// Package dag implements a small directed graph used to check the import layering of the
// module's packages.
//
// Layers are given as rules of the form
//
//	change, util, metrics < grouper < runner, selector, visualize < main
//
// meaning that packages on the right may import packages on the left of any "<" but never the
// other way round. Lines starting with # are comments.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is a directed graph over string labels. Nodes keep insertion order.
type Graph struct {
	Nodes   []string
	byLabel map[string]int
	edges   map[string]map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byLabel: map[string]int{}, edges: map[string]map[string]bool{}}
}

// AddNode adds a node and reports whether it was new.
func (g *Graph) AddNode(label string) bool {
	if _, ok := g.byLabel[label]; ok {
		return false
	}
	g.byLabel[label] = len(g.Nodes)
	g.Nodes = append(g.Nodes, label)
	g.edges[label] = map[string]bool{}
	return true
}

func (g *Graph) HasNode(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}

// AddEdge adds an edge, creating missing nodes.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.edges[from][to] = true
}

func (g *Graph) HasEdge(from, to string) bool {
	return g.edges[from] != nil && g.edges[from][to]
}

// Edges returns the successors of a node in node order.
func (g *Graph) Edges(from string) []string {
	edges := make([]string, 0, len(g.edges[from]))
	for k := range g.edges[from] {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool { return g.byLabel[edges[i]] < g.byLabel[edges[j]] })
	return edges
}

// Roots returns the nodes without an incoming edge.
func (g *Graph) Roots() []string {
	roots := make([]string, 0, len(g.Nodes))
	for _, j := range g.Nodes {
		isRoot := true
		for _, i := range g.Nodes {
			if g.HasEdge(i, j) {
				isRoot = false
				break
			}
		}
		if isRoot {
			roots = append(roots, j)
		}
	}
	return roots
}

// Sort returns the nodes in topological order, every node after its successors, or an error
// naming a node on a cycle.
func (g *Graph) Sort() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))

	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case visiting:
			return fmt.Errorf("cycle through %q", n)
		case done:
			return nil
		}
		state[n] = visiting
		for _, m := range g.Edges(n) {
			if err := visit(m); err != nil {
				return err
			}
		}
		state[n] = done
		order = append(order, n)
		return nil
	}

	for _, n := range g.Nodes {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Layers maps each label to its layer index as given by a rule set.
type Layers map[string]int

// ParseLayers parses layering rules, see the package documentation.
func ParseLayers(rules string) (Layers, error) {
	layers := Layers{}
	base := 0
	for _, line := range strings.Split(rules, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		levels := strings.Split(line, "<")
		for i, level := range levels {
			for _, label := range strings.Split(level, ",") {
				label = strings.TrimSpace(label)
				if label == "" {
					return nil, fmt.Errorf("empty label in rule %q", line)
				}
				if _, ok := layers[label]; ok {
					return nil, fmt.Errorf("label %q defined twice", label)
				}
				layers[label] = base + i
			}
		}
		base += len(levels)
	}
	return layers, nil
}

// Check verifies that every edge of g points to a strictly lower layer. Nodes not mentioned in
// the layers are reported as errors too.
func (l Layers) Check(g *Graph) []error {
	errs := []error{}
	for _, from := range g.Nodes {
		lf, ok := l[from]
		if !ok {
			errs = append(errs, fmt.Errorf("package %q has no layer", from))
			continue
		}
		for _, to := range g.Edges(from) {
			lt, ok := l[to]
			if !ok {
				continue // reported when visiting to
			}
			if lt >= lf {
				errs = append(errs, fmt.Errorf("%q may not import %q", from, to))
			}
		}
	}
	return errs
}
