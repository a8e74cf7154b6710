package compiler

import "github.com/sheetflow/sheetflow/model"

// graph is a directed graph over declared column names: edges[v] is the
// set of columns v's formula references (§4.7.2). Only declared columns
// ever appear as vertices; references to undeclared columns are dropped
// during construction, per §3's dependency-graph invariant.
type graph struct {
	edges map[string][]string
}

func newGraph() *graph {
	return &graph{edges: make(map[string][]string)}
}

func (g *graph) addVertex(name string) {
	if _, ok := g.edges[name]; !ok {
		g.edges[name] = nil
	}
}

func (g *graph) addEdge(from, to string) {
	g.edges[from] = append(g.edges[from], to)
}

// buildGraph walks each column's AST to extract the columns it references,
// per the kind→referenced-columns table in §4.7.2, and records an edge for
// every reference that lands on a declared column.
func buildGraph(cols map[string]model.Node, columns ColumnResolver) *graph {
	g := newGraph()
	for name := range cols {
		g.addVertex(name)
	}
	for name, ast := range cols {
		refs, constant := referencedColumns(ast, columns)
		if constant || len(refs) == 0 {
			continue
		}
		if len(refs) == 1 {
			if _, declared := cols[refs[0]]; !declared {
				continue
			}
		}
		for _, ref := range refs {
			if _, declared := cols[ref]; declared {
				g.addEdge(name, ref)
			}
		}
	}
	return g
}

// referencedColumns returns the set of column names node refers to and
// whether the node should be treated as a constant (no references at all).
// Kind → referenced columns follows §4.7.2 exactly.
func referencedColumns(node model.Node, columns ColumnResolver) (refs []string, constant bool) {
	switch n := node.(type) {
	case model.NumberNode, model.TextNode, model.LogicalNode:
		return nil, true
	case model.CellNode:
		if col, ok := columns.resolve(n.Key); ok {
			return []string{col}, false
		}
		return nil, false
	case model.ReferenceNode:
		if col, ok := columns.resolve(n.Key); ok {
			return []string{col}, false
		}
		return nil, false
	case model.CellRangeNode:
		var out []string
		for _, key := range n.Keys {
			if col, ok := columns.resolve(key); ok {
				out = append(out, col)
			}
		}
		return out, false
	case model.FunctionNode:
		var out []string
		for _, arg := range n.Arguments {
			r, _ := referencedColumns(arg, columns)
			out = append(out, r...)
		}
		return out, false
	case model.BinaryNode:
		left, _ := referencedColumns(n.Left, columns)
		right, _ := referencedColumns(n.Right, columns)
		return append(left, right...), false
	case model.UnaryNode:
		return referencedColumns(n.Operand, columns)
	default:
		return nil, false
	}
}

// hasCycle runs a standard three-color DFS cycle check over the graph.
func (g *graph) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.edges))
	var visit func(v string) bool
	visit = func(v string) bool {
		color[v] = gray
		for _, w := range g.edges[v] {
			switch color[w] {
			case gray:
				return true
			case white:
				if visit(w) {
					return true
				}
			}
		}
		color[v] = black
		return false
	}
	for v := range g.edges {
		if color[v] == white {
			if visit(v) {
				return true
			}
		}
	}
	return false
}

// level computes the §4.7.3 priority level of v: 0 if v has no outgoing
// edges, else the SUM over successors w of (1 + level(w)). This is
// deliberately not the textbook longest-path definition — see
// SPEC_FULL.md §4.7.3, which keeps the sum exactly.
func (g *graph) level(v string, memo map[string]int) int {
	if l, ok := memo[v]; ok {
		return l
	}
	successors := g.edges[v]
	if len(successors) == 0 {
		memo[v] = 0
		return 0
	}
	total := 0
	for _, w := range successors {
		total += 1 + g.level(w, memo)
	}
	memo[v] = total
	return total
}

// levels returns the computed level for every vertex in the graph.
func (g *graph) levels() map[string]int {
	memo := make(map[string]int, len(g.edges))
	out := make(map[string]int, len(g.edges))
	for v := range g.edges {
		out[v] = g.level(v, memo)
	}
	return out
}
