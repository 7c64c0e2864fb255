// Package nodetype is the closed set of node kinds the editor knows about.
//
// Each kind carries a capability record resolved once when the registry is
// built: the output fields its variables expose, the params it requires, and
// the free-text params that may embed variable references.
package nodetype

import (
	"sort"

	"github.com/aescanero/dago-editor/pkg/domain"
)

// Kind is a node type tag
type Kind string

const (
	Input          Kind = "input"
	Output         Kind = "output"
	Text           Kind = "text"
	Note           Kind = "note"
	DocumentToText Kind = "document-to-text"
	FileSave       Kind = "file-save"
	Scripts        Kind = "scripts"
	Transform      Kind = "transform"
	Merge          Kind = "merge"
	Condition      Kind = "condition"

	OpenAI     Kind = "openai"
	Anthropic  Kind = "anthropic"
	Claude35   Kind = "claude35"
	Gemini     Kind = "gemini"
	Cohere     Kind = "cohere"
	Perplexity Kind = "perplexity"
	XAI        Kind = "xai"
	AWS        Kind = "aws"
	Azure      Kind = "azure"

	KBReader Kind = "kb-reader"
	KBLoader Kind = "kb-loader"
	KBSearch Kind = "kb-search"
	KBSync   Kind = "kb-sync"

	URLLoader Kind = "url-loader"
	APILoader Kind = "api-loader"
	CSVLoader Kind = "csv-loader"

	MySQL   Kind = "mysql"
	MongoDB Kind = "mongodb"
	GitHub  Kind = "github"
	Slack   Kind = "slack"
	Notion  Kind = "notion"

	AudioProcessor Kind = "audio-processor"
	ChatMemory     Kind = "chat-memory"
	DataCollector  Kind = "data-collector"
	ChatFileReader Kind = "chat-file-reader"
)

// Category groups kinds in the node panel
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryAI          Category = "ai"
	CategoryKnowledge   Category = "knowledge"
	CategoryIntegration Category = "integration"
	CategoryLoader      Category = "loader"
	CategoryMultimodal  Category = "multimodal"
	CategoryLogic       Category = "logic"
	CategoryChat        Category = "chat"
)

// FieldType is the value type of an output field
type FieldType string

const (
	FieldText   FieldType = "Text"
	FieldString FieldType = "String"
	FieldNumber FieldType = "Number"
	FieldImage  FieldType = "Image"
	FieldAudio  FieldType = "Audio"
	FieldFile   FieldType = "File"
	FieldJSON   FieldType = "JSON"
	FieldAny    FieldType = "Any"
)

// compatible maps an expected input type to the output types it accepts
var compatible = map[FieldType][]FieldType{
	FieldText:   {FieldText, FieldString, FieldNumber, FieldAny},
	FieldNumber: {FieldNumber, FieldAny},
	FieldImage:  {FieldImage, FieldAny},
	FieldAudio:  {FieldAudio, FieldAny},
	FieldFile:   {FieldFile, FieldAny},
	FieldJSON:   {FieldJSON, FieldAny},
	FieldAny:    {FieldText, FieldNumber, FieldImage, FieldAudio, FieldFile, FieldJSON, FieldAny},
}

// Accepts reports whether a field of type out can feed an input expecting t.
// Types without a compatibility entry only accept themselves.
func (t FieldType) Accepts(out FieldType) bool {
	accepted, ok := compatible[t]
	if !ok {
		return t == out
	}
	for _, a := range accepted {
		if a == out {
			return true
		}
	}
	return false
}

// Field is an output field a node exposes to variable references
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Capability describes what a node kind offers
type Capability struct {
	Kind           Kind     `json:"kind"`
	Label          string   `json:"label"`
	Category       Category `json:"category"`
	Description    string   `json:"description"`
	OutputFields   []Field  `json:"output_fields"`
	RequiredParams []string `json:"required_params,omitempty"`
	TextParams     []string `json:"text_params,omitempty"`
}

// FieldNames returns the output field names in declaration order
func (c Capability) FieldNames() []string {
	names := make([]string, len(c.OutputFields))
	for i, f := range c.OutputFields {
		names[i] = f.Name
	}
	return names
}

// CompatibleFields returns the output fields an input of type t accepts.
// An empty t accepts every field.
func (c Capability) CompatibleFields(t FieldType) []Field {
	if t == "" {
		return append([]Field(nil), c.OutputFields...)
	}
	var out []Field
	for _, f := range c.OutputFields {
		if t.Accepts(f.Type) {
			out = append(out, f)
		}
	}
	return out
}

// MissingParams returns the required params the node leaves empty
func (c Capability) MissingParams(n domain.Node) []string {
	var missing []string
	for _, p := range c.RequiredParams {
		v, ok := n.Data.Params[p]
		if !ok || v == nil {
			missing = append(missing, p)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, p)
		}
	}
	return missing
}

// Registry resolves kinds to capabilities
type Registry struct {
	caps map[Kind]Capability
}

// NewRegistry builds a registry from capability records. Later records for
// the same kind replace earlier ones.
func NewRegistry(caps ...Capability) *Registry {
	r := &Registry{caps: make(map[Kind]Capability, len(caps))}
	for _, c := range caps {
		r.caps[c.Kind] = c
	}
	return r
}

// Lookup returns the capability for a kind
func (r *Registry) Lookup(kind string) (Capability, bool) {
	c, ok := r.caps[Kind(kind)]
	return c, ok
}

// Kinds returns every registered kind, sorted
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.caps))
	for k := range r.caps {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsAIProvider reports whether kind is a model-provider node
func (r *Registry) IsAIProvider(kind string) bool {
	c, ok := r.Lookup(kind)
	return ok && c.Category == CategoryAI
}

// defaultOutput is used for kinds the registry does not know
var defaultOutput = Capability{
	Description:  "Node output",
	OutputFields: []Field{{Name: "output", Type: FieldAny}},
}

// Resolve returns the capability governing a node. Unknown kinds fall back
// to the node's declared outputFields, else a single "output" field.
func (r *Registry) Resolve(n domain.Node) Capability {
	if c, ok := r.Lookup(n.Type); ok {
		return c
	}
	c := defaultOutput
	c.Kind = Kind(n.Type)
	c.Label = n.Type
	if len(n.Data.OutputFields) > 0 {
		c.OutputFields = make([]Field, len(n.Data.OutputFields))
		for i, name := range n.Data.OutputFields {
			c.OutputFields[i] = Field{Name: name, Type: FieldAny}
		}
	}
	return c
}
