package gemini

import (
	"context"

	"google.golang.org/genai"
)

// Response schemas for the structured research surfaces. Keeping them
// next to the client means the engine only ever sees JSON strings.

var routeSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"local_search": {
			Type:        genai.TypeBoolean,
			Description: "True when the uploaded document corpus should be searched.",
		},
		"web_search": {
			Type:        genai.TypeBoolean,
			Description: "True when the live web should be searched.",
		},
	},
	Required: []string{"local_search", "web_search"},
}

var subQuestionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sub_questions": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"sub_questions"},
}

var relevanceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"relevance_score": {
			Type:        genai.TypeNumber,
			Description: "How well the evidence answers the question, 0 to 10.",
		},
		"missing_aspects": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"relevance_score"},
}

// Responder answers prompts as JSON constrained by one response schema.
type Responder struct {
	client *Client
	schema *genai.Schema
}

func (r Responder) Respond(ctx context.Context, prompt string) (string, error) {
	return r.client.RespondJSON(ctx, prompt, r.schema)
}

// RouteResponder answers route-classification prompts with JSON that
// matches the routing schema.
func (c *Client) RouteResponder() Responder {
	return Responder{client: c, schema: routeSchema}
}

// SubQuestionResponder answers planning prompts with a sub_questions array.
func (c *Client) SubQuestionResponder() Responder {
	return Responder{client: c, schema: subQuestionSchema}
}

// RelevanceResponder answers judging prompts with a relevance score and
// missing aspects.
func (c *Client) RelevanceResponder() Responder {
	return Responder{client: c, schema: relevanceSchema}
}
