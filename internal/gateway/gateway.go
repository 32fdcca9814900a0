package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agent-forge/agent-forge/internal/ghclient"
	"github.com/agent-forge/agent-forge/models"
)

// LLMSanityCheck optionally reconsiders the numeric RoutingDecision. The
// numeric scorer remains authoritative on any LLM error or timeout
// (spec.md §4.6). The Gateway bounds every call to a single attempt with a
// timeout — implementations must not retry internally.
type LLMSanityCheck func(ctx context.Context, work models.WorkItem, decision models.RoutingDecision) (models.RoutingDecision, error)

// Gateway classifies WorkItems and applies the resulting label+comment.
// Every WorkItem that passes Polling MUST traverse it before dispatch.
type Gateway struct {
	client     ghclient.Client
	llm        LLMSanityCheck
	llmTimeout time.Duration
}

// New constructs a Gateway. llm may be nil to disable the sanity check.
func New(client ghclient.Client, llm LLMSanityCheck, llmTimeout time.Duration) *Gateway {
	if llmTimeout <= 0 {
		llmTimeout = 10 * time.Second
	}
	return &Gateway{client: client, llm: llm, llmTimeout: llmTimeout}
}

// Classify implements spec.md §4.6. If a coordinator-approved-* label is
// already present it is idempotent: it recovers the cached decision from
// the label and returns without posting a new comment or calling the LLM,
// making re-runs after restart safe (spec.md Invariant 9 / Scenario S6).
func (g *Gateway) Classify(ctx context.Context, work models.WorkItem, priorAttempts int) (models.RoutingDecision, error) {
	for _, label := range work.Labels {
		if class, ok := models.ClassFromLabel(label); ok {
			return models.RoutingDecision{
				Class:            class,
				AssignedRoleHint: models.RoleForClass(class),
				Rationale:        "(recovered from label)",
			}, nil
		}
	}

	decision := Score(work, priorAttempts)

	if g.llm != nil {
		llmCtx, cancel := context.WithTimeout(ctx, g.llmTimeout)
		refined, err := g.llm(llmCtx, work, decision)
		cancel()
		if err == nil {
			decision = refined
		}
		// On any LLM error or timeout the numeric score remains
		// authoritative (spec.md §4.6) — err is intentionally discarded
		// here rather than propagated.
	}

	comment := decision.Rationale
	if _, err := g.client.CreateComment(ctx, work.Owner, work.Name, work.Number, comment); err != nil {
		return decision, fmt.Errorf("gateway: posting decision comment: %w", err)
	}
	if err := g.client.AddLabels(ctx, work.Owner, work.Name, work.Number, []string{decision.Class.Label()}); err != nil {
		return decision, fmt.Errorf("gateway: applying decision label: %w", err)
	}
	g.stripOtherClassLabels(ctx, work, decision.Class)

	return decision, nil
}

// stripOtherClassLabels removes the coordinator-approved-* labels for every
// class except the one just applied, so a re-classification (e.g. after an
// escalation bumps Simple/Uncertain to Complex) never leaves two class
// labels on the same issue — spec.md §6's "exactly one of" contract.
// work.Labels is not trusted here: it is a snapshot taken at dispatch time
// and may already be stale by the time an escalation re-runs Classify, so
// every other class label is unconditionally targeted for removal and a
// not-found response (the label was never applied) is not an error.
func (g *Gateway) stripOtherClassLabels(ctx context.Context, work models.WorkItem, chosen models.RoutingClass) {
	for _, class := range []models.RoutingClass{models.ClassSimple, models.ClassUncertain, models.ClassComplex} {
		if class == chosen {
			continue
		}
		err := g.client.RemoveLabels(ctx, work.Owner, work.Name, work.Number, []string{class.Label()})
		if err != nil && !errors.Is(err, ghclient.ErrNotFound) {
			slog.Warn("gateway: removing stale coordinator-approved label failed",
				"issue", work.Number, "label", class.Label(), "error", err)
		}
	}
}
