package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetflow/sheetflow/compiler"
	"github.com/sheetflow/sheetflow/model"
)

var (
	compileInput  string
	compileOutput string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a parsed formula AST into DDL",
	Long: `compile reads the already-parsed formula AST the external Excel/formula
parser produced (this is the independent Excel file → parser → compiler →
DDL flow of §6 — this subcommand never reads a spreadsheet itself) and
runs it through the formula-to-SQL compilation pipeline (C9), writing the
level-ordered CREATE/ALTER TABLE statements as JSON.`,
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVar(&compileInput, "input", "", "path to the compile request JSON (default: stdin)")
	compileCmd.Flags().StringVar(&compileOutput, "output", "", "path to write the compile result JSON (default: stdout)")
}

// compileRequest is the on-disk/stdin shape this subcommand accepts: a
// resolved cell→column map, a named AST per column, each column's SQL
// type, and the target table name.
type compileRequest struct {
	TableName string                     `json:"table_name"`
	Columns   map[string]string          `json:"columns"`
	Dtypes    map[string]model.ColumnType `json:"dtypes"`
	Nodes     map[string]json.RawMessage `json:"nodes"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	raw, err := readCompileInput()
	if err != nil {
		return err
	}

	var req compileRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse compile request: %w", err)
	}
	if req.TableName == "" {
		return fmt.Errorf("compile request: table_name is required")
	}

	cols := make(map[string]model.Node, len(req.Nodes))
	for name, nodeJSON := range req.Nodes {
		node, err := decodeNode(nodeJSON)
		if err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		cols[name] = node
	}

	result := compiler.Compile(cols, compiler.ColumnResolver(req.Columns), req.Dtypes, req.TableName)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal compile result: %w", err)
	}
	return writeCompileOutput(out)
}

func readCompileInput() ([]byte, error) {
	if compileInput == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(compileInput)
}

func writeCompileOutput(data []byte) error {
	data = append(data, '\n')
	if compileOutput == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(compileOutput, data, 0o644)
}

// rawNode mirrors the tagged-union shape every formula AST node serializes
// to: a "kind" discriminator (model.NodeKind) plus the fields relevant to
// that kind, with nested nodes themselves encoded the same way. This is
// the JSON counterpart of model.Node's sealed interface — the compiler
// package works entirely in terms of the typed model.Node variants, so
// this decoder is the one place that bridges external JSON into them.
type rawNode struct {
	Kind      model.NodeKind    `json:"kind"`
	Value     json.RawMessage   `json:"value"`
	Key       string            `json:"key"`
	RefType   string            `json:"ref_type"`
	Start     string            `json:"start"`
	End       string            `json:"end"`
	Keys      []string          `json:"keys"`
	SheetName string            `json:"sheet_name"`
	Name      string            `json:"name"`
	Arguments []json.RawMessage `json:"arguments"`
	Operator  string            `json:"operator"`
	Left      json.RawMessage   `json:"left"`
	Right     json.RawMessage   `json:"right"`
	Operand   json.RawMessage   `json:"operand"`
}

func decodeNode(raw json.RawMessage) (model.Node, error) {
	var rn rawNode
	if err := json.Unmarshal(raw, &rn); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}

	switch rn.Kind {
	case model.NodeNumber:
		var v float64
		if err := json.Unmarshal(rn.Value, &v); err != nil {
			return nil, fmt.Errorf("number node: %w", err)
		}
		return model.NumberNode{Value: v}, nil
	case model.NodeText:
		var v string
		if err := json.Unmarshal(rn.Value, &v); err != nil {
			return nil, fmt.Errorf("text node: %w", err)
		}
		return model.TextNode{Value: v}, nil
	case model.NodeLogical:
		var v bool
		if err := json.Unmarshal(rn.Value, &v); err != nil {
			return nil, fmt.Errorf("logical node: %w", err)
		}
		return model.LogicalNode{Value: v}, nil
	case model.NodeCell:
		return model.CellNode{Key: rn.Key, RefType: rn.RefType}, nil
	case model.NodeCellRange:
		return model.CellRangeNode{Start: rn.Start, End: rn.End, Keys: rn.Keys}, nil
	case model.NodeReference:
		return model.ReferenceNode{SheetName: rn.SheetName, Key: rn.Key, RefType: rn.RefType}, nil
	case model.NodeFunction:
		args := make([]model.Node, 0, len(rn.Arguments))
		for _, argRaw := range rn.Arguments {
			arg, err := decodeNode(argRaw)
			if err != nil {
				return nil, fmt.Errorf("function %q argument: %w", rn.Name, err)
			}
			args = append(args, arg)
		}
		return model.FunctionNode{Name: rn.Name, Arguments: args}, nil
	case model.NodeBinary:
		left, err := decodeNode(rn.Left)
		if err != nil {
			return nil, fmt.Errorf("binary left operand: %w", err)
		}
		right, err := decodeNode(rn.Right)
		if err != nil {
			return nil, fmt.Errorf("binary right operand: %w", err)
		}
		return model.BinaryNode{Operator: rn.Operator, Left: left, Right: right}, nil
	case model.NodeUnary:
		operand, err := decodeNode(rn.Operand)
		if err != nil {
			return nil, fmt.Errorf("unary operand: %w", err)
		}
		return model.UnaryNode{Operator: rn.Operator, Operand: operand}, nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", rn.Kind)
	}
}
