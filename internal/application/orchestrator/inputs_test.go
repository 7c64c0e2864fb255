package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aescanero/dago-editor/pkg/domain"
)

func inputNode(id string, params map[string]any) domain.Node {
	return domain.Node{ID: id, Type: "input", Data: domain.NodeData{Params: params}}
}

func TestInputKey(t *testing.T) {
	tests := []struct {
		id, key, index string
	}{
		{"input_0", "input_0", "0"},
		{"input_12", "input_12", "12"},
		{"input-3", "input_3", "3"},
		{"input", "input_0", "0"},
		{"input_", "input_0", "0"},
	}
	for _, tt := range tests {
		key, index := InputKey(tt.id)
		assert.Equal(t, tt.key, key, tt.id)
		assert.Equal(t, tt.index, index, tt.id)
	}
}

func TestSyncInputs(t *testing.T) {
	nodes := []domain.Node{
		inputNode("input_0", map[string]any{"type": "JSON", "required": true}),
		inputNode("input_1", map[string]any{"type": "Video"}),
		inputNode("input_2", nil),
		inputNode("input_0", map[string]any{"type": "Audio"}),
		{ID: "output_0", Type: "output"},
	}
	previous := map[string]domain.InputValue{
		"input_0": {Value: `{"a":1}`, Type: domain.InputJSON},
		"input_2": {Value: "old", Type: domain.InputImage},
	}

	got := SyncInputs(nodes, previous, nil)
	assert.Equal(t, map[string]domain.InputValue{
		"input_0": {Value: `{"a":1}`, Type: domain.InputJSON, NodeID: "input_0", NodeIndex: "0", IsRequired: true},
		"input_1": {Value: "", Type: domain.InputText, NodeID: "input_1", NodeIndex: "1"},
		"input_2": {Value: "", Type: domain.InputText, NodeID: "input_2", NodeIndex: "2"},
	}, got)
}

func TestValidateInputs(t *testing.T) {
	inputs := map[string]domain.InputValue{
		"input_0": {Value: "  ", Type: domain.InputText, IsRequired: true},
		"input_1": {Value: "{oops", Type: domain.InputJSON},
		"input_2": {Value: `{"ok":true}`, Type: domain.InputJSON, IsRequired: true},
		"input_3": {Value: "", Type: domain.InputJSON},
		"input_4": {Value: domain.FileValue{Name: "a.png", Data: []byte{1}}, Type: domain.InputImage, IsRequired: true},
	}
	assert.Equal(t, []string{
		"input_0 is required but has no value",
		"input_1 contains invalid JSON",
	}, ValidateInputs(inputs))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		msg  string
		want Category
	}{
		{"Invalid API key", CategoryAuthentication},
		{"authentication failed for model gpt-4", CategoryAuthentication},
		{"request timeout", CategoryTimeout},
		{"workflow execution timed out after 60 seconds", CategoryTimeout},
		{"model not found", CategoryModel},
		{"Anthropic overloaded", CategoryModel},
		{"missing parameter prompt", CategoryInput},
		{"invalid JSON body", CategoryInput},
		{"required field url", CategoryInput},
		{"something broke", CategoryGeneric},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.msg), tt.msg)
	}
	assert.Equal(t, "Try rerunning the workflow or check the workflow configuration.", CategoryGeneric.Hint())
	assert.Equal(t, "Error", CategoryGeneric.Title())
}
