package llmclient

// RuntimePlanJSONSchemaName names RuntimePlanJSONSchema, the JSON Schema
// handed to OpenAI's json_schema response format (the OpenAI and LM Studio
// clients). The Google client sends no schema: its structured call only
// requests an application/json response MIME type, and it has no retry
// without a schema. The schema mirrors the shape of a runtimeplan.RuntimePlan closely
// enough to constrain generation without binding callers to the Go type's
// exact field tags, since some providers reject schemas using formats their
// validator doesn't recognize (e.g. "date-time").
const RuntimePlanJSONSchemaName = "runtime_plan"

// RuntimePlanJSONSchema is a draft-07-compatible object schema describing a
// RuntimePlan's top-level shape. additionalProperties is left true for
// nested node content since component/element payloads are open-ended by
// design (arbitrary props, arbitrary attributes).
var RuntimePlanJSONSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id": map[string]any{"type": "string"},
		"root": map[string]any{
			"type":                 "object",
			"additionalProperties": true,
		},
		"source":         map[string]any{"type": "string"},
		"sourceLanguage": map[string]any{"type": "string"},
		"sourceRuntime":  map[string]any{"type": "string"},
		"imports": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"manifest": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "object", "additionalProperties": true},
		},
		"capabilities": map[string]any{
			"type":                 "object",
			"additionalProperties": true,
		},
		"state": map[string]any{
			"type":                 "object",
			"additionalProperties": true,
		},
	},
	"required":             []string{"id"},
	"additionalProperties": false,
}
