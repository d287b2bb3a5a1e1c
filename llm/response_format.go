package llm

// ResponseFormat specifies the format of the LLM response.
type ResponseFormat struct {
	// Type is the format type ("text", "json_object" or "json_schema").
	Type string `json:"type"`
	// JSONSchema is the JSON schema for structured output (if supported).
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
}

// NewJSONResponseFormat creates a response format for JSON output.
func NewJSONResponseFormat() *ResponseFormat {
	return &ResponseFormat{Type: "json_object"}
}

// NewJSONSchemaResponseFormat creates a response format with a specific JSON schema.
func NewJSONSchemaResponseFormat(schema map[string]interface{}) *ResponseFormat {
	return &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: schema,
	}
}
