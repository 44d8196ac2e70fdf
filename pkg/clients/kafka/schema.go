package kafka

// Schema describes the accepted connection config options.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic":   map[string]any{"type": "string", "minLength": 1},
			"brokers": map[string]any{"type": "string"},
		},
	}
}
