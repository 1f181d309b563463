package director

import (
	"encoding/json"

	"codeberg.org/mutker/vibesd/internal/errors"
	"github.com/google/jsonschema-go/jsonschema"
)

const hexColorPattern = "^#[0-9A-Fa-f]{6}$"

var contextSchema = mustResolve(&jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"theme":           {Type: "string"},
		"primary_color":   {Type: "string", Pattern: hexColorPattern},
		"secondary_color": {Type: "string", Pattern: hexColorPattern},
		"directive":       {Type: "string"},
	},
	Required: []string{"theme", "primary_color", "secondary_color", "directive"},
})

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic("director: invalid context schema: " + err.Error())
	}
	return r
}

// parseContext decodes the model's answer and validates it. The answer is
// taken whole or not at all: truncated or otherwise malformed JSON is
// ErrParse, never a partially filled context.
func parseContext(raw string) (AiContext, error) {
	errFactory := errors.New()

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return AiContext{}, errFactory.Wrap(ErrParse, err)
	}

	if err := contextSchema.Validate(doc); err != nil {
		return AiContext{}, errFactory.Wrap(ErrSchema, err)
	}

	fields := doc.(map[string]any)
	return AiContext{
		Theme:          fields["theme"].(string),
		PrimaryColor:   fields["primary_color"].(string),
		SecondaryColor: fields["secondary_color"].(string),
		Directive:      fields["directive"].(string),
	}, nil
}
