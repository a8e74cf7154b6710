// Package compiler implements the formula-to-SQL compilation pipeline
// (C9): dependency graph construction, cycle detection, level assignment,
// and per-node DDL emission.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sheetflow/sheetflow/model"
)

// ColumnResolver maps a raw spreadsheet cell key (e.g. "A1") to the
// declared column name it feeds, mirroring the `columns` lookup table
// named throughout §4.7.1. A key absent from the map is "unmapped".
type ColumnResolver map[string]string

func (r ColumnResolver) resolve(key string) (string, bool) {
	name, ok := r[key]
	return name, ok
}

// EmitNode emits the DDL fragment for a single AST node, exposed for unit
// testing the dispatch table independent of the full Compile pipeline.
func EmitNode(node model.Node, columns ColumnResolver) model.DDLNode {
	return emitNode(node, columns)
}

// emitNode recursively emits SQL for node, propagating child errors
// upward. The dispatch is an exhaustive type switch over the closed Node
// sum type — an unrecognized concrete type falls through to the default
// branch and is treated as the "unknown" safe-default emitter.
func emitNode(node model.Node, columns ColumnResolver) model.DDLNode {
	switch n := node.(type) {
	case model.NumberNode:
		return model.DDLNode{Kind: model.NodeNumber, SQL: formatNumber(n.Value)}
	case model.LogicalNode:
		return model.DDLNode{Kind: model.NodeLogical, SQL: formatLogical(n.Value)}
	case model.TextNode:
		return model.DDLNode{Kind: model.NodeText, SQL: quoteSQLText(n.Value)}
	case model.CellNode:
		return emitCell(n, columns)
	case model.CellRangeNode:
		return emitCellRange(n, columns)
	case model.ReferenceNode:
		return emitReference(n, columns)
	case model.BinaryNode:
		return emitBinary(n, columns)
	case model.UnaryNode:
		return emitUnary(n, columns)
	case model.FunctionNode:
		return emitFunction(n, columns)
	default:
		return model.DDLNode{Error: fmt.Sprintf("unknown AST node type %T", node)}
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatLogical(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// quoteSQLText single-quotes a string literal, doubling embedded single
// quotes per standard SQL escaping.
func quoteSQLText(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

func emitCell(n model.CellNode, columns ColumnResolver) model.DDLNode {
	col, ok := columns.resolve(n.Key)
	if !ok {
		return model.DDLNode{Kind: model.NodeCell, SQL: "", Error: fmt.Sprintf("cell %q is not mapped to a column", n.Key)}
	}
	return model.DDLNode{Kind: model.NodeCell, SQL: col}
}

func emitReference(n model.ReferenceNode, columns ColumnResolver) model.DDLNode {
	col, ok := columns.resolve(n.Key)
	if !ok {
		return model.DDLNode{Kind: model.NodeReference, SQL: "", Error: fmt.Sprintf("cell %q is not mapped to a column", n.Key)}
	}
	return model.DDLNode{Kind: model.NodeReference, SQL: n.SheetName + "." + col}
}

// emitCellRange never produces directly-usable SQL of its own (§4.7.1:
// "not emitted as sql, consumed by function") — it resolves and validates
// every cell key in the range and reports the first unmapped one.
func emitCellRange(n model.CellRangeNode, columns ColumnResolver) model.DDLNode {
	cols, err := resolveRangeColumns(n, columns)
	if err != "" {
		return model.DDLNode{Kind: model.NodeCellRange, Error: err}
	}
	return model.DDLNode{Kind: model.NodeCellRange, SQL: strings.Join(cols, ", ")}
}

func resolveRangeColumns(n model.CellRangeNode, columns ColumnResolver) ([]string, string) {
	cols := make([]string, 0, len(n.Keys))
	for _, key := range n.Keys {
		col, ok := columns.resolve(key)
		if !ok {
			return nil, fmt.Sprintf("cell %q is not mapped to a column", key)
		}
		cols = append(cols, col)
	}
	return cols, ""
}

func emitBinary(n model.BinaryNode, columns ColumnResolver) model.DDLNode {
	left := emitNode(n.Left, columns)
	if left.Error != "" {
		return model.DDLNode{Kind: model.NodeBinary, Error: left.Error}
	}
	right := emitNode(n.Right, columns)
	if right.Error != "" {
		return model.DDLNode{Kind: model.NodeBinary, Error: right.Error}
	}
	return model.DDLNode{Kind: model.NodeBinary, SQL: fmt.Sprintf("(%s) %s (%s)", left.SQL, n.Operator, right.SQL)}
}

func emitUnary(n model.UnaryNode, columns ColumnResolver) model.DDLNode {
	operand := emitNode(n.Operand, columns)
	if operand.Error != "" {
		return model.DDLNode{Kind: model.NodeUnary, Error: operand.Error}
	}
	return model.DDLNode{Kind: model.NodeUnary, SQL: fmt.Sprintf("%s(%s)", n.Operator, operand.SQL)}
}

func emitFunction(n model.FunctionNode, columns ColumnResolver) model.DDLNode {
	args, err := emitArguments(n.Arguments, columns)
	if err != "" {
		return model.DDLNode{Kind: model.NodeFunction, Error: err}
	}
	tmpl, ok := functionTemplates[strings.ToUpper(n.Name)]
	if !ok {
		return model.DDLNode{Kind: model.NodeFunction, SQL: n.Name + "(" + defaultFunctionTemplate(args) + ")"}
	}
	return model.DDLNode{Kind: model.NodeFunction, SQL: tmpl(args)}
}

// emitArguments emits every argument, resolving a bare cell-range argument
// (e.g. SUM(A1:A3)) to its individual column names rather than the joined
// placeholder emitCellRange returns, so function templates can address
// each column independently.
func emitArguments(args []model.Node, columns ColumnResolver) ([]string, string) {
	var out []string
	for _, arg := range args {
		if rng, ok := arg.(model.CellRangeNode); ok {
			cols, rangeErr := resolveRangeColumns(rng, columns)
			if rangeErr != "" {
				return nil, rangeErr
			}
			out = append(out, cols...)
			continue
		}
		emitted := emitNode(arg, columns)
		if emitted.Error != "" {
			return nil, emitted.Error
		}
		out = append(out, emitted.SQL)
	}
	return out, ""
}
