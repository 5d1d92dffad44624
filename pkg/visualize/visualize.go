// Package visualize renders the current partition of a grouper as diagrams.
package visualize

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/l7mp/dgroup/pkg/grouper"
	"github.com/l7mp/dgroup/pkg/util"
)

// Graph is a rendering-independent snapshot of a partition.
type Graph struct {
	Name   string      `json:"name"`
	Groups []GroupNode `json:"groups"`
}

// GroupNode is one group and the keys of its members.
type GroupNode struct {
	Key     string   `json:"key"`
	Members []string `json:"members"`
}

// Generator renders a graph in some output format.
type Generator interface {
	Generate(g *Graph) string
}

// BuildGraph takes a snapshot of the groups of g. Keys are rendered with util.Stringify and
// members are sorted.
func BuildGraph[K comparable, V any, G comparable](name string, g *grouper.Grouper[K, V, G]) *Graph {
	graph := &Graph{Name: name, Groups: []GroupNode{}}
	for _, grp := range g.Groups() {
		members := util.Map(func(k K) string { return util.Stringify(k) }, grp.Keys().UnsortedList())
		util.SortByString(members, func(s string) string { return s })
		graph.Groups = append(graph.Groups, GroupNode{
			Key:     util.Stringify(grp.Key()),
			Members: members,
		})
	}
	return graph
}

// BuildDotGraph creates a dot.Graph from the visualization graph: one cluster per group with a
// node per member. The result can be rendered in different formats (DOT, Mermaid).
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("compound", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	for _, grp := range g.Groups {
		groupID := "group/" + grp.Key
		groupNode := graph.Node(groupID).
			Attr("label", fmt.Sprintf("%s (%d)", grp.Key, len(grp.Members))).
			Attr("shape", "box").
			Attr("style", "filled,rounded").
			Attr("fillcolor", "lightblue").
			Attr("color", "darkblue").
			Attr("penwidth", "2").
			Attr("fontname", "helvetica")

		for _, m := range grp.Members {
			memberNode := graph.Node(groupID+"/"+m).
				Attr("label", m).
				Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen")
			graph.Edge(groupNode, memberNode)
		}
	}

	return graph
}
