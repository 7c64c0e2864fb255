package orchestrator

import (
	"strings"

	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/pkg/domain"
)

// Input node params read by the orchestrator
const (
	ParamInputType = "type"
	ParamRequired  = "required"
)

// InputKey returns the run input key of an input node and the index it
// was derived from: "input_{n}" where n is the id suffix after the last
// '_' or '-', or "0" when the id has none.
func InputKey(nodeID string) (key, index string) {
	index = "0"
	if i := strings.LastIndexAny(nodeID, "_-"); i >= 0 && i < len(nodeID)-1 {
		index = nodeID[i+1:]
	}
	return "input_" + index, index
}

// SyncInputs rebuilds the input snapshot from the input nodes. A previous
// value survives when its key and declared type are unchanged; undeclared
// or unknown types fall back to Text. Later nodes repeating an id are
// ignored.
func SyncInputs(nodes []domain.Node, previous map[string]domain.InputValue, logger *zap.Logger) map[string]domain.InputValue {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make(map[string]domain.InputValue)
	seen := make(map[string]bool)
	for _, n := range nodes {
		if n.Type != "input" {
			continue
		}
		if seen[n.ID] {
			logger.Warn("duplicate input node ignored", zap.String("node_id", n.ID))
			continue
		}
		seen[n.ID] = true

		key, index := InputKey(n.ID)
		inputType := domain.InputType(n.StringParam(ParamInputType))
		if inputType == "" {
			inputType = domain.InputText
		} else if !inputType.IsValid() {
			logger.Warn("invalid input type, defaulting to Text",
				zap.String("input_id", key),
				zap.String("input_type", string(inputType)))
			inputType = domain.InputText
		}

		var value any = ""
		if prev, ok := previous[key]; ok && prev.Type == inputType {
			value = prev.Value
		}

		required, _ := n.Data.Params[ParamRequired].(bool)
		out[key] = domain.InputValue{
			Value:      value,
			Type:       inputType,
			NodeID:     n.ID,
			NodeIndex:  index,
			IsRequired: required,
		}
	}
	return out
}

// isEmptyValue reports whether an input value counts as unfilled
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case domain.FileValue:
		return len(val.Data) == 0 && val.Name == ""
	case *domain.FileValue:
		return val == nil
	}
	return false
}
