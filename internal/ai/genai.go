package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/models"
	"google.golang.org/genai"
)

// GenAI is an LLMSanityCheck backend on top of the Gemini API via
// google.golang.org/genai (spec.md §4.6's "optional LLM sanity check").
type GenAI struct {
	client *genai.Client
	model  string
}

// NewGenAI constructs a GenAI backend. cfg.APIKey may be empty if
// GOOGLE_API_KEY/GEMINI_API_KEY is set in the environment, matching the
// SDK's own credential resolution.
func NewGenAI(ctx context.Context, cfg config.LLMConfig) (*GenAI, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("ai: create genai client: %w", err)
	}
	return &GenAI{client: client, model: model}, nil
}

// sanityCheckPrompt instructs the model to return strict JSON so Check can
// parse it without a tool-calling round trip.
const sanityCheckPrompt = `You are reviewing an automated triage decision for a GitHub issue in an
autonomous development pipeline. The numeric scorer below already assigned
a classification; only override it if it is clearly wrong. Respond with
a single JSON object and nothing else: {"class": "simple"|"uncertain"|"complex", "rationale": "<one sentence>"}.

Issue title: %s
Issue body (truncated): %s
Labels: %s
Numeric score: %d (class=%s)
Numeric rationale: %s
`

// Check implements gateway.LLMSanityCheck.
func (g *GenAI) Check(ctx context.Context, work models.WorkItem, decision models.RoutingDecision) (models.RoutingDecision, error) {
	body := work.Body
	if len(body) > 4000 {
		body = body[:4000] + "..."
	}
	prompt := fmt.Sprintf(sanityCheckPrompt, work.Title, body, strings.Join(work.Labels, ", "),
		decision.Score, decision.Class, decision.Rationale)

	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return decision, fmt.Errorf("ai: generate content: %w", err)
	}

	text := extractText(resp)
	refined, err := parseVerdict(text)
	if err != nil {
		return decision, fmt.Errorf("ai: parsing verdict: %w", err)
	}

	out := decision
	out.Class = refined.Class
	out.AssignedRoleHint = models.RoleForClass(refined.Class)
	out.Rationale = fmt.Sprintf("%s (llm: %s)", decision.Rationale, refined.Rationale)
	return out, nil
}

type verdict struct {
	Class     models.RoutingClass `json:"class"`
	Rationale string               `json:"rationale"`
}

// parseVerdict extracts the JSON object from the model's response text,
// tolerating a fenced code block around it.
func parseVerdict(text string) (verdict, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return verdict{}, fmt.Errorf("no JSON object in response: %q", text)
	}

	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return verdict{}, err
	}
	switch v.Class {
	case models.ClassSimple, models.ClassUncertain, models.ClassComplex:
	default:
		return verdict{}, fmt.Errorf("unrecognized class %q", v.Class)
	}
	return v, nil
}

// extractText concatenates every text part of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
