package nodetype

var (
	outputOnly = []Field{{Name: "output", Type: FieldText}}
	aiFields   = []Field{{Name: "response", Type: FieldText}, {Name: "full_response", Type: FieldJSON}}
	promptText = []string{"prompt", "system"}
)

func ai(kind Kind, label string) Capability {
	return Capability{
		Kind:           kind,
		Label:          label,
		Category:       CategoryAI,
		Description:    "AI model response",
		OutputFields:   aiFields,
		RequiredParams: []string{"prompt"},
		TextParams:     promptText,
	}
}

func general(kind Kind, label string, cat Category, fields ...Field) Capability {
	if len(fields) == 0 {
		fields = outputOnly
	}
	return Capability{
		Kind:         kind,
		Label:        label,
		Category:     cat,
		Description:  "Node output",
		OutputFields: fields,
	}
}

// Catalog returns the built-in capability records
func Catalog() []Capability {
	input := general(Input, "Input", CategoryGeneral)
	input.Description = "Text input from this node"

	output := general(Output, "Output", CategoryGeneral)
	output.TextParams = []string{"output"}

	transform := general(Transform, "Transform", CategoryLogic,
		Field{Name: "output", Type: FieldText},
		Field{Name: "transformed_text", Type: FieldText})
	transform.Description = "Transformed text output"
	transform.TextParams = []string{"template"}

	kbSearch := general(KBSearch, "Smart Search", CategoryKnowledge,
		Field{Name: "results", Type: FieldJSON},
		Field{Name: "metadata", Type: FieldJSON})
	kbSearch.Description = "Knowledge base search results"
	kbSearch.TextParams = []string{"query"}

	urlLoader := general(URLLoader, "URL", CategoryLoader,
		Field{Name: "content", Type: FieldText},
		Field{Name: "url", Type: FieldText})
	urlLoader.RequiredParams = []string{"url"}
	urlLoader.TextParams = []string{"url"}

	apiLoader := general(APILoader, "API", CategoryLoader,
		Field{Name: "output", Type: FieldJSON})
	apiLoader.RequiredParams = []string{"url"}
	apiLoader.TextParams = []string{"url", "body"}

	scripts := general(Scripts, "Scripts", CategoryGeneral)
	scripts.TextParams = []string{"script"}

	mysql := general(MySQL, "MySQL", CategoryIntegration, Field{Name: "output", Type: FieldJSON})
	mysql.TextParams = []string{"query"}
	mongo := general(MongoDB, "MongoDB", CategoryIntegration, Field{Name: "output", Type: FieldJSON})
	mongo.TextParams = []string{"query"}
	slack := general(Slack, "Slack", CategoryIntegration)
	slack.TextParams = []string{"message"}

	return []Capability{
		input, output,
		general(Text, "Text", CategoryGeneral),
		general(Note, "Notes", CategoryGeneral),
		general(DocumentToText, "Document to Text", CategoryGeneral),
		general(FileSave, "File Save", CategoryGeneral),
		scripts, transform,
		general(Merge, "Merge", CategoryLogic),
		general(Condition, "Condition", CategoryLogic),

		ai(OpenAI, "OpenAI"),
		ai(Anthropic, "Anthropic"),
		ai(Claude35, "Claude 3.5"),
		ai(Gemini, "Gemini"),
		ai(Cohere, "Cohere"),
		ai(Perplexity, "Perplexity"),
		ai(XAI, "X.AI"),
		ai(AWS, "AWS Bedrock"),
		ai(Azure, "Azure OpenAI"),

		general(KBReader, "Query Knowledge", CategoryKnowledge),
		general(KBLoader, "Upload Knowledge", CategoryKnowledge),
		kbSearch,
		general(KBSync, "Sync Knowledge", CategoryKnowledge),

		urlLoader, apiLoader,
		general(CSVLoader, "CSV", CategoryLoader, Field{Name: "output", Type: FieldJSON}),

		mysql, mongo,
		general(GitHub, "GitHub", CategoryIntegration),
		slack,
		general(Notion, "Notion", CategoryIntegration),

		general(AudioProcessor, "Audio", CategoryMultimodal),
		general(ChatMemory, "Chat Memory", CategoryChat),
		general(DataCollector, "Data Collector", CategoryChat),
		general(ChatFileReader, "Chat File Reader", CategoryChat),
	}
}

// Default returns a registry holding the built-in catalog
func Default() *Registry {
	return NewRegistry(Catalog()...)
}
