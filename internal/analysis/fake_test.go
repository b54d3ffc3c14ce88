package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MimeLyc/sales-playbook/internal/outcome"
)

const (
	comparisonReply = `{
  "winning_patterns": [{"pattern": "clear next steps", "frequency": 2, "evidence": ["scheduled demo"]}],
  "losing_patterns": [],
  "effective_questions": [
    {"question": "What does success look like?", "success_rate": "80%", "why_it_works": "goal framing"},
    {"question": "Who else decides?", "success_rate": 60, "why_it_works": "maps stakeholders"}
  ],
  "critical_objections": [
    {"objection": "Too expensive", "successful_responses": ["Show ROI"], "failed_responses": ["Offer discount"]},
    {"objection": "No time now", "successful_responses": ["Propose pilot"], "failed_responses": []},
    {"objection": "Using a competitor", "failed_responses": ["Criticize them"]}
  ],
  "engagement_triggers": [{"trigger": "Customer story", "how_to_replicate": "Share a similar case"}]
}`

	playbookReply = "```json\n" + `{
  "opening_script": {"script": "Hello and welcome", "key_elements": ["rapport", "agenda"], "avoid": []},
  "discovery_questions": [
    {"question": "What does success look like?", "purpose": "goals", "expected_response": "long", "follow_up": "Why?", "timing": "after initial rapport"}
  ],
  "objection_handling": [
    {"objection": "Too expensive", "recommended_response": "Anchor on value", "alternative_response": "", "what_not_to_say": "", "success_evidence": ""}
  ],
  "engagement_tactics": [{"tactic": "Tell a story", "when_to_use": "early", "example": "Client X"}],
  "closing_checklist": [{"item": "Budget confirmed", "why": "avoid stalls"}],
  "red_flags": [{"flag": "Silence", "what_it_means": "disengaged", "how_to_recover": "ask open question"}]
}` + "\n```"

	extractionReply = `{"seller_questions": [{"question": "q", "client_response_length": "long", "generated_interest": true}], "objections": []}`
)

// scriptedGenerator answers by recognising which stage a prompt belongs to.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []string
	failOn  func(prompt string) bool
	replies map[string]string
	onCall  func(stage string)
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{replies: map[string]string{
		"extraction": extractionReply,
		"comparison": comparisonReply,
		"playbook":   playbookReply,
	}}
}

func stageOf(prompt string) string {
	switch {
	case strings.Contains(prompt, "specialized sales analyst"):
		return "extraction"
	case strings.Contains(prompt, "sales strategist"):
		return "comparison"
	case strings.Contains(prompt, "sales enablement specialist"):
		return "playbook"
	default:
		return "unknown"
	}
}

func (g *scriptedGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	stage := stageOf(prompt)
	g.mu.Lock()
	g.calls = append(g.calls, stage)
	onCall := g.onCall
	g.mu.Unlock()
	if onCall != nil {
		onCall(stage)
	}
	if g.failOn != nil && g.failOn(prompt) {
		return "", errors.New("provider down")
	}
	return g.replies[stage], nil
}

func (g *scriptedGenerator) count(stage string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == stage {
			n++
		}
	}
	return n
}

func transcript(o outcome.Outcome, content string) Transcript {
	return Transcript{Content: content, Outcome: o, Confidence: outcome.High, Reason: "r"}
}
