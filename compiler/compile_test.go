package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/model"
)

// TestCompile_HappyPath mirrors scenario S3 from SPEC_FULL.md §8.
func TestCompile_HappyPath(t *testing.T) {
	cols := map[string]model.Node{
		"col1": model.NumberNode{Value: 10},
		"col2": model.FunctionNode{
			Name: "IF",
			Arguments: []model.Node{
				model.BinaryNode{
					Operator: ">",
					Left:     model.CellNode{Key: "A1"},
					Right:    model.NumberNode{Value: 18},
				},
				model.TextNode{Value: "Adult"},
				model.TextNode{Value: "Minor"},
			},
		},
		"col3": model.CellNode{Key: "B1"},
		"col4": model.NumberNode{Value: 10},
	}
	columns := ColumnResolver{"A1": "col1", "B1": "col2"}
	dtypes := map[string]model.ColumnType{
		"col1": {Type: "INTEGER"},
		"col2": {Type: "TEXT"},
		"col3": {Type: "TEXT"},
		"col4": {Type: "INTEGER"},
	}

	result := Compile(cols, columns, dtypes, "t")
	require.Empty(t, result.Error)

	require.Len(t, result.Content[0], 1)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS t (id SERIAL PRIMARY KEY, col1 INTEGER, col4 INTEGER);", result.Content[0][0].SQL)
	assert.ElementsMatch(t, []string{"id", "col1", "col4"}, result.Content[0][0].Columns)

	var col2Stmt *model.LevelStatement
	var col3Level int
	for lvl, stmts := range result.Content {
		for i := range stmts {
			if stmts[i].Columns[0] == "col2" {
				col2Stmt = &stmts[i]
			}
			if stmts[i].Columns[0] == "col3" {
				col3Level = lvl
			}
		}
	}
	require.NotNil(t, col2Stmt)
	assert.Contains(t, col2Stmt.SQL, "CASE WHEN (col1) > (18) THEN 'Adult' ELSE 'Minor' END")
	assert.Greater(t, col3Level, 0)
}

// TestCompile_CycleRejected mirrors scenario S4.
func TestCompile_CycleRejected(t *testing.T) {
	cols := map[string]model.Node{
		"a": model.CellNode{Key: "refB"},
		"b": model.CellNode{Key: "refA"},
	}
	columns := ColumnResolver{"refB": "b", "refA": "a"}
	dtypes := map[string]model.ColumnType{"a": {Type: "TEXT"}, "b": {Type: "TEXT"}}

	result := Compile(cols, columns, dtypes, "t")
	assert.Equal(t, "cyclic dependencies", result.Error)
	assert.Empty(t, result.Content)
}

// TestEmitNode_UnmappedCell mirrors scenario S5.
func TestEmitNode_UnmappedCell(t *testing.T) {
	node := model.CellNode{Key: "Z1"}
	ddl := EmitNode(node, ColumnResolver{})
	assert.Empty(t, ddl.SQL)
	assert.NotEmpty(t, ddl.Error)
}

func TestEmitNode_Literals(t *testing.T) {
	assert.Equal(t, "10", EmitNode(model.NumberNode{Value: 10}, nil).SQL)
	assert.Equal(t, "TRUE", EmitNode(model.LogicalNode{Value: true}, nil).SQL)
	assert.Equal(t, "FALSE", EmitNode(model.LogicalNode{Value: false}, nil).SQL)
	assert.Equal(t, "'Hello, World!'", EmitNode(model.TextNode{Value: "Hello, World!"}, nil).SQL)
	assert.Equal(t, "'It''s'", EmitNode(model.TextNode{Value: "It's"}, nil).SQL)
}

func TestEmitNode_Unary(t *testing.T) {
	ddl := EmitNode(model.UnaryNode{Operator: "-", Operand: model.NumberNode{Value: 5}}, nil)
	assert.Equal(t, "-(5)", ddl.SQL)
}

func TestEmitNode_Reference(t *testing.T) {
	columns := ColumnResolver{"A1": "col1"}
	ddl := EmitNode(model.ReferenceNode{SheetName: "Sheet2", Key: "A1"}, columns)
	assert.Equal(t, "Sheet2.col1", ddl.SQL)
}

func TestEmitFunction_SumOverRange(t *testing.T) {
	columns := ColumnResolver{"A1": "col1", "A2": "col2"}
	node := model.FunctionNode{
		Name:      "SUM",
		Arguments: []model.Node{model.CellRangeNode{Start: "A1", End: "A2", Keys: []string{"A1", "A2"}}},
	}
	ddl := EmitNode(node, columns)
	assert.Equal(t, "col1 + col2", ddl.SQL)
}

func TestEmitFunction_Unknown(t *testing.T) {
	node := model.FunctionNode{
		Name:      "VLOOKUP",
		Arguments: []model.Node{model.NumberNode{Value: 1}, model.NumberNode{Value: 2}},
	}
	ddl := EmitNode(node, nil)
	assert.Equal(t, "VLOOKUP(1, 2)", ddl.SQL)
	assert.Empty(t, ddl.Error)
}

// TestGraph_TopologicalSoundness is a property test for invariant 7:
// every column referenced by a level-k column's SQL is declared at a
// level < k or is a level-0 column.
func TestGraph_TopologicalSoundness(t *testing.T) {
	cols := map[string]model.Node{
		"col1": model.NumberNode{Value: 1},
		"col2": model.CellNode{Key: "refCol1"},
		"col3": model.CellNode{Key: "refCol2"},
	}
	columns := ColumnResolver{"refCol1": "col1", "refCol2": "col2"}
	g := buildGraph(cols, columns)
	require.False(t, g.hasCycle())
	levels := g.levels()

	assert.Equal(t, 0, levels["col1"])
	assert.Less(t, levels["col1"], levels["col2"])
	assert.Less(t, levels["col2"], levels["col3"])
}

func TestHasPrimaryKey(t *testing.T) {
	assert.True(t, hasPrimaryKey(map[string]model.ColumnType{"id": {Extra: "PRIMARY KEY"}}))
	assert.True(t, hasPrimaryKey(map[string]model.ColumnType{"id": {Extra: "not null primary key"}}))
	assert.False(t, hasPrimaryKey(map[string]model.ColumnType{"id": {Extra: "NOT NULL"}}))
}
