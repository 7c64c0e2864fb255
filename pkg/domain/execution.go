package domain

import "time"

// RunState is the orchestrator's per-run state
type RunState string

const (
	RunStateIdle       RunState = "idle"
	RunStateValidating RunState = "validating"
	RunStateRunning    RunState = "running"
	RunStateCompleted  RunState = "completed"
	RunStateError      RunState = "error"
)

// IsTerminal reports whether the run has finished
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateError
}

// NodeStatus is a node's status during run playback
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
)

// NodeStat tracks one node during a run
type NodeStat struct {
	NodeID        string     `json:"nodeId"`
	Status        NodeStatus `json:"status"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	ExecutionTime *float64   `json:"executionTime,omitempty"` // seconds
}

// InputType is the declared type of an input node's value
type InputType string

const (
	InputText          InputType = "Text"
	InputImage         InputType = "Image"
	InputFormattedText InputType = "Formatted Text"
	InputAudio         InputType = "Audio"
	InputJSON          InputType = "JSON"
	InputFile          InputType = "File"
)

// ValidInputTypes lists the input types an input node may declare
var ValidInputTypes = []InputType{InputText, InputImage, InputFormattedText, InputAudio, InputJSON, InputFile}

// IsValid reports whether t is a known input type
func (t InputType) IsValid() bool {
	for _, v := range ValidInputTypes {
		if v == t {
			return true
		}
	}
	return false
}

// FileValue is a binary input value
type FileValue struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// InputValue is one entry of a run's input snapshot
type InputValue struct {
	Value      any       `json:"value"`
	Type       InputType `json:"type"`
	NodeID     string    `json:"nodeId,omitempty"`
	NodeIndex  string    `json:"nodeIndex,omitempty"`
	IsRequired bool      `json:"isRequired,omitempty"`
}

// IsBinary reports whether the value must travel as a file part
func (v InputValue) IsBinary() bool {
	switch v.Value.(type) {
	case FileValue, *FileValue:
		return true
	}
	return false
}

// ExecutionMode selects how the backend runs the workflow
type ExecutionMode string

const (
	ModeStandard ExecutionMode = "standard"
	ModeChatbot  ExecutionMode = "chatbot"
	ModeVoice    ExecutionMode = "voice"
)

// IsValid reports whether m is a known execution mode
func (m ExecutionMode) IsValid() bool {
	return m == ModeStandard || m == ModeChatbot || m == ModeVoice
}

// ExecutionInput is the wire form of an input
type ExecutionInput struct {
	Value any       `json:"value"`
	Type  InputType `json:"type"`
}

// ExecuteRequest is sent to the execution backend
type ExecuteRequest struct {
	WorkflowID string                    `json:"-"`
	Inputs     map[string]ExecutionInput `json:"inputs"`
	Mode       ExecutionMode             `json:"mode"`
}

// HasFiles reports whether any input carries a binary value
func (r *ExecuteRequest) HasFiles() bool {
	for _, in := range r.Inputs {
		if (InputValue{Value: in.Value}).IsBinary() {
			return true
		}
	}
	return false
}

// Backend response status values
const (
	ResponseStatusOK    = "ok"
	ResponseStatusError = "error"
)

// NodeResult is the backend's per-node outcome
type NodeResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the node errored server-side
func (r NodeResult) Failed() bool {
	return r.Status == ResponseStatusError
}

// OutputResult is one produced workflow output
type OutputResult struct {
	Output   any    `json:"output"`
	Type     string `json:"type"`
	NodeID   string `json:"node_id,omitempty"`
	NodeName string `json:"node_name,omitempty"`
}

// ExecuteResponse is returned by the execution backend
type ExecuteResponse struct {
	Status        string                  `json:"status"`
	Error         string                  `json:"error,omitempty"`
	ExecutionID   string                  `json:"execution_id,omitempty"`
	ExecutionTime float64                 `json:"execution_time"`
	ExecutionPath []string                `json:"execution_path"`
	NodeResults   map[string]NodeResult   `json:"node_results"`
	Outputs       map[string]OutputResult `json:"outputs"`
}
