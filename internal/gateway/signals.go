// Package gateway implements the Gateway / classifier (spec.md §4.6):
// every WorkItem that passes Polling MUST traverse this before dispatch.
package gateway

import (
	"strconv"
	"strings"

	"github.com/agent-forge/agent-forge/models"
)

var complexityKeywords = []string{
	"refactor", "architecture", "migrate", "migration", "breaking", "rewrite", "redesign",
}

var addLabels = map[string]struct{}{
	"epic":         {},
	"architecture": {},
}

var subtractLabels = map[string]struct{}{
	"typo": {},
	"docs": {},
}

var trustedAuthors = map[string]struct{}{
	"coordinator-bot": {},
	"developer-bot":   {},
}

// descriptionLengthSignal scores 0-10 by body length.
func descriptionLengthSignal(body string) int {
	n := len(strings.TrimSpace(body))
	switch {
	case n == 0:
		return 0
	case n < 100:
		return 2
	case n < 400:
		return 5
	case n < 1200:
		return 8
	default:
		return 10
	}
}

// checklistSignal scores 0-10 by the number of markdown checklist items.
func checklistSignal(body string) int {
	count := 0
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- [ ]") || strings.HasPrefix(trimmed, "- [x]") || strings.HasPrefix(trimmed, "- [X]") {
			count++
		}
	}
	return capScore(count*2, 10)
}

// referencedFilesSignal scores 0-10 by the number of distinct file-path-like
// tokens (backtick-quoted paths containing a '.' and a '/').
func referencedFilesSignal(body string) int {
	seen := map[string]struct{}{}
	parts := strings.Split(body, "`")
	for i := 1; i < len(parts); i += 2 {
		tok := strings.TrimSpace(parts[i])
		if strings.Contains(tok, "/") && strings.Contains(tok, ".") {
			seen[tok] = struct{}{}
		}
	}
	return capScore(len(seen)*2, 10)
}

// complexityKeywordSignal scores 0-10 by presence of keywords that signal
// architectural scope.
func complexityKeywordSignal(title, body string) int {
	haystack := strings.ToLower(title + " " + body)
	count := 0
	for _, kw := range complexityKeywords {
		if strings.Contains(haystack, kw) {
			count++
		}
	}
	return capScore(count*4, 10)
}

// labelHintSignal returns a signed contribution in [-10, 10].
func labelHintSignal(labels []string) int {
	score := 0
	for _, l := range labels {
		lower := strings.ToLower(l)
		if _, ok := addLabels[lower]; ok {
			score += 10
		}
		if _, ok := subtractLabels[lower]; ok {
			score -= 10
		}
	}
	if score > 10 {
		score = 10
	}
	if score < -10 {
		score = -10
	}
	return score
}

// authorReputationSignal scores 0-5: a known trusted bot/agent author.
func authorReputationSignal(author string) int {
	if _, ok := trustedAuthors[author]; ok {
		return 5
	}
	return 0
}

// referencedComponentSignal scores 0-5 by the number of distinct top-level
// directory components named in backtick-quoted paths.
func referencedComponentSignal(body string) int {
	seen := map[string]struct{}{}
	parts := strings.Split(body, "`")
	for i := 1; i < len(parts); i += 2 {
		tok := strings.TrimSpace(parts[i])
		if idx := strings.Index(tok, "/"); idx > 0 {
			seen[tok[:idx]] = struct{}{}
		}
	}
	return capScore(len(seen), 5)
}

// priorFailurePenaltySignal scores 0-5 by the count of prior failed attempts
// on the same WorkItem fingerprint.
func priorFailurePenaltySignal(priorAttempts int) int {
	return capScore(priorAttempts, 5)
}

func capScore(v, max int) int {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

// Score implements the signal table verbatim (spec.md §4.6): total in
// [0, 65], thresholds <=10 Simple, 11-24 Uncertain, >=25 Complex.
func Score(work models.WorkItem, priorAttempts int) models.RoutingDecision {
	signals := map[string]int{
		"description_length":   descriptionLengthSignal(work.Body),
		"checklist_items":      checklistSignal(work.Body),
		"referenced_files":     referencedFilesSignal(work.Body),
		"complexity_keywords":  complexityKeywordSignal(work.Title, work.Body),
		"label_hints":          labelHintSignal(work.Labels),
		"author_reputation":    authorReputationSignal(work.Author),
		"referenced_components": referencedComponentSignal(work.Body),
		"prior_failures":       priorFailurePenaltySignal(priorAttempts),
	}

	total := 0
	for _, v := range signals {
		total += v
	}
	if total < 0 {
		total = 0
	}
	if total > 65 {
		total = 65
	}

	var class models.RoutingClass
	switch {
	case total <= 10:
		class = models.ClassSimple
	case total <= 24:
		class = models.ClassUncertain
	default:
		class = models.ClassComplex
	}

	return models.RoutingDecision{
		Class:            class,
		Score:            total,
		Signals:          signals,
		AssignedRoleHint: models.RoleForClass(class),
		Rationale:        rationale(class, total, signals),
	}
}

func rationale(class models.RoutingClass, total int, signals map[string]int) string {
	return strings.TrimSpace(
		string(class) + " (score " + strconv.Itoa(total) + "): " + signalSummary(signals),
	)
}

func signalSummary(signals map[string]int) string {
	names := []string{
		"description_length", "checklist_items", "referenced_files",
		"complexity_keywords", "label_hints", "author_reputation",
		"referenced_components", "prior_failures",
	}
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
		b.WriteString("=")
		b.WriteString(strconv.Itoa(signals[n]))
	}
	return b.String()
}
