package mqtt

// Schema describes the accepted connection config options.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic":      map[string]any{"type": "string", "minLength": 1},
			"qos":        map[string]any{"type": "integer", "minimum": 0, "maximum": maxQoS},
			"retain":     map[string]any{"type": "boolean"},
			"ssl":        map[string]any{"type": "boolean"},
			"client_id":  map[string]any{"type": "string"},
			"keep_alive": map[string]any{"type": "integer", "minimum": 1},
		},
	}
}
