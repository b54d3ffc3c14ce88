package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Number accepts a JSON number or a numeric string such as "75%".
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

type sellerQuestion struct {
	Question             string `json:"question"`
	ClientResponseLength string `json:"client_response_length"`
	GeneratedInterest    bool   `json:"generated_interest"`
}

type extractedMoment struct {
	Quote     string `json:"quote"`
	Indicator string `json:"indicator"`
}

type extractedObjection struct {
	Objection         string `json:"objection"`
	SellerResponse    string `json:"seller_response"`
	ObjectionResolved bool   `json:"objection_resolved"`
}

// extraction is the per-transcript output of the first stage.
type extraction struct {
	SellerQuestions   []sellerQuestion     `json:"seller_questions"`
	EngagementMoments []extractedMoment    `json:"engagement_moments"`
	Objections        []extractedObjection `json:"objections"`
	ClientPainPoints  []string             `json:"client_pain_points"`
	BuyingSignals     []string             `json:"buying_signals"`
}

func (e *extraction) Normalize() {
	e.SellerQuestions = orEmpty(e.SellerQuestions)
	e.EngagementMoments = orEmpty(e.EngagementMoments)
	e.Objections = orEmpty(e.Objections)
	e.ClientPainPoints = orEmpty(e.ClientPainPoints)
	e.BuyingSignals = orEmpty(e.BuyingSignals)
}

type pattern struct {
	Pattern   string   `json:"pattern"`
	Frequency Number   `json:"frequency"`
	Evidence  []string `json:"evidence"`
}

type comparedQuestion struct {
	Question    string `json:"question"`
	SuccessRate Number `json:"success_rate"`
	WhyItWorks  string `json:"why_it_works"`
}

type criticalObjection struct {
	Objection           string   `json:"objection"`
	SuccessfulResponses []string `json:"successful_responses"`
	FailedResponses     []string `json:"failed_responses"`
}

type engagementTrigger struct {
	Trigger        string `json:"trigger"`
	HowToReplicate string `json:"how_to_replicate"`
}

// comparison is the won-versus-lost output of the second stage.
type comparison struct {
	WinningPatterns    []pattern           `json:"winning_patterns"`
	LosingPatterns     []pattern           `json:"losing_patterns"`
	EffectiveQuestions []comparedQuestion  `json:"effective_questions"`
	CriticalObjections []criticalObjection `json:"critical_objections"`
	EngagementTriggers []engagementTrigger `json:"engagement_triggers"`
}

func (c *comparison) Normalize() {
	c.WinningPatterns = orEmpty(c.WinningPatterns)
	c.LosingPatterns = orEmpty(c.LosingPatterns)
	c.EffectiveQuestions = orEmpty(c.EffectiveQuestions)
	c.CriticalObjections = orEmpty(c.CriticalObjections)
	c.EngagementTriggers = orEmpty(c.EngagementTriggers)
	for i := range c.WinningPatterns {
		c.WinningPatterns[i].Evidence = orEmpty(c.WinningPatterns[i].Evidence)
	}
	for i := range c.LosingPatterns {
		c.LosingPatterns[i].Evidence = orEmpty(c.LosingPatterns[i].Evidence)
	}
	for i := range c.CriticalObjections {
		c.CriticalObjections[i].SuccessfulResponses = orEmpty(c.CriticalObjections[i].SuccessfulResponses)
		c.CriticalObjections[i].FailedResponses = orEmpty(c.CriticalObjections[i].FailedResponses)
	}
}

type openingScript struct {
	Script      string   `json:"script"`
	KeyElements []string `json:"key_elements"`
	Avoid       []string `json:"avoid"`
}

type discoveryQuestion struct {
	Question         string `json:"question"`
	Purpose          string `json:"purpose"`
	ExpectedResponse string `json:"expected_response"`
	FollowUp         string `json:"follow_up"`
	Timing           string `json:"timing"`
}

type objectionHandling struct {
	Objection           string `json:"objection"`
	RecommendedResponse string `json:"recommended_response"`
	AlternativeResponse string `json:"alternative_response"`
	WhatNotToSay        string `json:"what_not_to_say"`
	SuccessEvidence     string `json:"success_evidence"`
}

type engagementTactic struct {
	Tactic    string `json:"tactic"`
	WhenToUse string `json:"when_to_use"`
	Example   string `json:"example"`
}

type checklistItem struct {
	Item string `json:"item"`
	Why  string `json:"why"`
}

type redFlag struct {
	Flag         string `json:"flag"`
	WhatItMeans  string `json:"what_it_means"`
	HowToRecover string `json:"how_to_recover"`
}

// playbook is the content generated by the third stage.
type playbook struct {
	OpeningScript      openingScript       `json:"opening_script"`
	DiscoveryQuestions []discoveryQuestion `json:"discovery_questions"`
	ObjectionHandling  []objectionHandling `json:"objection_handling"`
	EngagementTactics  []engagementTactic  `json:"engagement_tactics"`
	ClosingChecklist   []checklistItem     `json:"closing_checklist"`
	RedFlags           []redFlag           `json:"red_flags"`
}

func (p *playbook) Normalize() {
	p.OpeningScript.KeyElements = orEmpty(p.OpeningScript.KeyElements)
	p.OpeningScript.Avoid = orEmpty(p.OpeningScript.Avoid)
	p.DiscoveryQuestions = orEmpty(p.DiscoveryQuestions)
	p.ObjectionHandling = orEmpty(p.ObjectionHandling)
	p.EngagementTactics = orEmpty(p.EngagementTactics)
	p.ClosingChecklist = orEmpty(p.ClosingChecklist)
	p.RedFlags = orEmpty(p.RedFlags)
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
