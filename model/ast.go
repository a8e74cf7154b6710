package model

// NodeKind is the closed tag set for the formula AST (§3). The compiler
// (package compiler) dispatches on this via an exhaustive switch, never
// reflection.
type NodeKind string

const (
	NodeNumber    NodeKind = "number"
	NodeText      NodeKind = "text"
	NodeLogical   NodeKind = "logical"
	NodeCell      NodeKind = "cell"
	NodeCellRange NodeKind = "cell-range"
	NodeReference NodeKind = "reference-node"
	NodeFunction  NodeKind = "function"
	NodeBinary    NodeKind = "binary-expression"
	NodeUnary     NodeKind = "unary-expression"
)

// Node is the sealed interface every AST node implements. The set of
// implementations below is closed — do not add a new one without adding a
// matching case to every dispatch table in package compiler.
type Node interface {
	Kind() NodeKind
}

// NumberNode is a numeric literal leaf.
type NumberNode struct{ Value float64 }

func (NumberNode) Kind() NodeKind { return NodeNumber }

// TextNode is a string literal leaf.
type TextNode struct{ Value string }

func (TextNode) Kind() NodeKind { return NodeText }

// LogicalNode is a boolean literal leaf.
type LogicalNode struct{ Value bool }

func (LogicalNode) Kind() NodeKind { return NodeLogical }

// CellNode references a single spreadsheet cell by its formula-facing key
// (e.g. "A1"). Key is resolved against the compiler's column map at
// emission time, not at construction time.
type CellNode struct {
	Key     string
	RefType string
}

func (CellNode) Kind() NodeKind { return NodeCell }

// CellRangeNode references a contiguous run of cells. Keys holds the raw
// per-cell references spanned by the range, in order (e.g. "A1:A3" expands
// to ["A1","A2","A3"]); each is resolved against the compiler's column map
// at emission time, same as CellNode.Key. Start/End retain the original
// range endpoints for diagnostics. Per §3, Start and End must resolve to
// the same row or the same column in the source sheet — the parser that
// produces this node (external to this module) is responsible for that
// invariant.
type CellRangeNode struct {
	Start string
	End   string
	Keys  []string
}

func (CellRangeNode) Kind() NodeKind { return NodeCellRange }

// ReferenceNode is a cell reference qualified by sheet name (cross-sheet
// formula reference).
type ReferenceNode struct {
	SheetName string
	Key       string
	RefType   string
}

func (ReferenceNode) Kind() NodeKind { return NodeReference }

// FunctionNode is a named function call over a finite argument list.
type FunctionNode struct {
	Name      string
	Arguments []Node
}

func (FunctionNode) Kind() NodeKind { return NodeFunction }

// BinaryNode is a two-operand expression (e.g. comparison, arithmetic).
type BinaryNode struct {
	Operator string
	Left     Node
	Right    Node
}

func (BinaryNode) Kind() NodeKind { return NodeBinary }

// UnaryNode is a single-operand prefix expression (e.g. negation).
type UnaryNode struct {
	Operator string
	Operand  Node
}

func (UnaryNode) Kind() NodeKind { return NodeUnary }

// DDLNode is the per-column output of compilation: the emitted SQL
// fragment plus an optional error, produced once and never mutated.
type DDLNode struct {
	Kind  NodeKind
	SQL   string
	Error string
}

// ColumnType is the declared SQL type and any extra DDL modifiers (e.g.
// "PRIMARY KEY", "NOT NULL") for one column.
type ColumnType struct {
	Type  string
	Extra string
}

// LevelStatement is one emitted DDL statement plus the columns it declares
// or alters, grouped by level in CompileResult.Content.
type LevelStatement struct {
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
}

// CompileResult is the output of the formula-to-SQL compilation pipeline
// (C9). Error is non-empty only for pipeline-level failures (cyclic
// dependency); per-column emission errors live on the corresponding
// DDLNode and do not by themselves populate this field.
type CompileResult struct {
	Content map[int][]LevelStatement
	Error   string
}
