// Package ai provides the optional LLM sanity-check backend the Gateway
// calls to reconsider its numeric RoutingDecision (spec.md §4.6). The
// numeric scorer is always authoritative; this package only ever refines,
// never replaces, and any error or timeout here is swallowed by the
// Gateway itself.
package ai

import (
	"context"
	"fmt"

	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/internal/gateway"
)

// New constructs the configured LLMSanityCheck backend. An empty
// cfg.Provider disables the sanity check entirely (nil), which is the
// Gateway's documented off switch; an unrecognized provider is an error.
func New(ctx context.Context, cfg config.LLMConfig) (gateway.LLMSanityCheck, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "genai":
		backend, err := NewGenAI(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ai: genai backend: %w", err)
		}
		return backend.Check, nil
	default:
		return nil, fmt.Errorf("ai: unknown llm provider %q", cfg.Provider)
	}
}
