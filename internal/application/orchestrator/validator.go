package orchestrator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aescanero/dago-editor/pkg/domain"
)

// Readiness reports why a workflow can or cannot run
type Readiness struct {
	HasInput      bool     `json:"has_input"`
	HasOutput     bool     `json:"has_output"`
	HasWorkflowID bool     `json:"has_workflow_id"`
	MissingInputs []string `json:"missing_inputs,omitempty"`
}

// Ready reports whether every precondition holds
func (r Readiness) Ready() bool {
	return r.HasInput && r.HasOutput && r.HasWorkflowID && len(r.MissingInputs) == 0
}

// CheckReadiness evaluates the run preconditions: an input node, an output
// node, a saved workflow id and a value for every required input.
func CheckReadiness(nodes []domain.Node, workflowID string, inputs map[string]domain.InputValue) Readiness {
	r := Readiness{HasWorkflowID: workflowID != ""}
	for _, n := range nodes {
		switch n.Type {
		case "input":
			r.HasInput = true
			if required, _ := n.Data.Params[ParamRequired].(bool); required {
				key, _ := InputKey(n.ID)
				if in, ok := inputs[key]; !ok || isEmptyValue(in.Value) {
					r.MissingInputs = append(r.MissingInputs, key)
				}
			}
		case "output":
			r.HasOutput = true
		}
	}
	return r
}

// ValidateInputs returns every violation in inputs, ordered by input key:
// required inputs without a value and JSON inputs that do not parse.
func ValidateInputs(inputs map[string]domain.InputValue) []string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var violations []string
	for _, key := range keys {
		in := inputs[key]
		if in.IsRequired && isEmptyValue(in.Value) {
			violations = append(violations, fmt.Sprintf("%s is required but has no value", key))
		}
		if in.Type != domain.InputJSON {
			continue
		}
		if s, ok := in.Value.(string); ok && strings.TrimSpace(s) != "" && !json.Valid([]byte(s)) {
			violations = append(violations, fmt.Sprintf("%s contains invalid JSON", key))
		}
	}
	return violations
}
