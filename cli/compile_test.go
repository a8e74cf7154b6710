package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/model"
)

func TestDecodeNode_Scalars(t *testing.T) {
	node, err := decodeNode(json.RawMessage(`{"kind":"number","value":42}`))
	require.NoError(t, err)
	assert.Equal(t, model.NumberNode{Value: 42}, node)

	node, err = decodeNode(json.RawMessage(`{"kind":"text","value":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, model.TextNode{Value: "hello"}, node)

	node, err = decodeNode(json.RawMessage(`{"kind":"logical","value":true}`))
	require.NoError(t, err)
	assert.Equal(t, model.LogicalNode{Value: true}, node)
}

func TestDecodeNode_CellAndRange(t *testing.T) {
	node, err := decodeNode(json.RawMessage(`{"kind":"cell","key":"A1","ref_type":"relative"}`))
	require.NoError(t, err)
	assert.Equal(t, model.CellNode{Key: "A1", RefType: "relative"}, node)

	node, err = decodeNode(json.RawMessage(`{"kind":"cell-range","start":"A1","end":"A3","keys":["A1","A2","A3"]}`))
	require.NoError(t, err)
	assert.Equal(t, model.CellRangeNode{Start: "A1", End: "A3", Keys: []string{"A1", "A2", "A3"}}, node)
}

func TestDecodeNode_BinaryAndUnary(t *testing.T) {
	raw := json.RawMessage(`{
		"kind": "binary-expression",
		"operator": ">",
		"left": {"kind": "cell", "key": "A1"},
		"right": {"kind": "number", "value": 18}
	}`)
	node, err := decodeNode(raw)
	require.NoError(t, err)
	assert.Equal(t, model.BinaryNode{
		Operator: ">",
		Left:     model.CellNode{Key: "A1"},
		Right:    model.NumberNode{Value: 18},
	}, node)

	raw = json.RawMessage(`{"kind": "unary-expression", "operator": "-", "operand": {"kind": "number", "value": 5}}`)
	node, err = decodeNode(raw)
	require.NoError(t, err)
	assert.Equal(t, model.UnaryNode{Operator: "-", Operand: model.NumberNode{Value: 5}}, node)
}

func TestDecodeNode_FunctionNestedArguments(t *testing.T) {
	raw := json.RawMessage(`{
		"kind": "function",
		"name": "IF",
		"arguments": [
			{"kind": "binary-expression", "operator": ">", "left": {"kind": "cell", "key": "A1"}, "right": {"kind": "number", "value": 18}},
			{"kind": "text", "value": "Adult"},
			{"kind": "text", "value": "Minor"}
		]
	}`)
	node, err := decodeNode(raw)
	require.NoError(t, err)

	fn, ok := node.(model.FunctionNode)
	require.True(t, ok)
	assert.Equal(t, "IF", fn.Name)
	require.Len(t, fn.Arguments, 3)
	assert.Equal(t, model.TextNode{Value: "Adult"}, fn.Arguments[1])
}

func TestDecodeNode_UnknownKind(t *testing.T) {
	_, err := decodeNode(json.RawMessage(`{"kind":"bogus"}`))
	assert.Error(t, err)
}

func TestDecodeNode_MalformedJSON(t *testing.T) {
	_, err := decodeNode(json.RawMessage(`not json`))
	assert.Error(t, err)
}
