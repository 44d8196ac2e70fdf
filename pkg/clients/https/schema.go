package https

// Schema describes the accepted connection config options.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method": map[string]any{
				"type": "string",
				"enum": []any{"POST", "PUT", "PATCH", "post", "put", "patch"},
			},
			"timeout":    map[string]any{"type": "integer", "minimum": 1, "maximum": 300},
			"ssl":        map[string]any{"type": "boolean"},
			"verify_ssl": map[string]any{"type": "boolean"},
			"auth_type": map[string]any{
				"type": "string",
				"enum": []any{AuthNone, AuthUserPass, AuthToken, AuthAPIKey},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	}
}
