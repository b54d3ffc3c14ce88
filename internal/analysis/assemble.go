package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/sales-playbook/internal/outcome"
)

const (
	speakerSeller         = "seller"
	impactHigh            = "high"
	defaultTiming         = "During discovery"
	unknownResponseTime   = "N/A"
	defaultObjectionCount = 1
)

// Playbook section names, in output order.
const (
	SectionOpening    = "Opening"
	SectionDiscovery  = "Discovery"
	SectionEngagement = "Engagement"
	SectionClosing    = "Closing"
	SectionRedFlags   = "Red flags"
)

// assemble merges the stage outputs into a Result. It performs no I/O.
func assemble(transcripts []Transcript, cmp comparison, pb playbook, at time.Time) Result {
	var wonCount, lostCount int
	for _, t := range transcripts {
		switch t.Outcome {
		case outcome.Won:
			wonCount++
		case outcome.Lost:
			lostCount++
		}
	}

	moments := make([]EngagementMoment, 0, len(cmp.EngagementTriggers))
	for _, tr := range cmp.EngagementTriggers {
		moments = append(moments, EngagementMoment{
			Quote:       tr.Trigger,
			Context:     tr.HowToReplicate,
			SpeakerTurn: speakerSeller,
			ImpactLevel: impactHigh,
		})
	}

	timing := make(map[string]string, len(pb.DiscoveryQuestions))
	for _, dq := range pb.DiscoveryQuestions {
		if _, seen := timing[dq.Question]; !seen {
			timing[dq.Question] = dq.Timing
		}
	}
	questions := make([]EffectiveQuestion, 0, len(cmp.EffectiveQuestions))
	for _, eq := range cmp.EffectiveQuestions {
		suggested := timing[eq.Question]
		if suggested == "" {
			suggested = defaultTiming
		}
		questions = append(questions, EffectiveQuestion{
			Question:        eq.Question,
			AvgResponseTime: unknownResponseTime,
			SuccessRate:     float64(eq.SuccessRate),
			SuggestedTiming: suggested,
		})
	}

	handling := make(map[string]string, len(pb.ObjectionHandling))
	for _, oh := range pb.ObjectionHandling {
		if _, seen := handling[oh.Objection]; !seen {
			handling[oh.Objection] = oh.RecommendedResponse
		}
	}
	objections := make([]ObjectionAnalysis, 0, len(cmp.CriticalObjections))
	for _, co := range cmp.CriticalObjections {
		recommended := handling[co.Objection]
		if recommended == "" && len(co.SuccessfulResponses) > 0 {
			recommended = co.SuccessfulResponses[0]
		}
		objections = append(objections, ObjectionAnalysis{
			Objection:             co.Objection,
			Frequency:             defaultObjectionCount,
			SuccessfulResponses:   co.SuccessfulResponses,
			UnsuccessfulResponses: co.FailedResponses,
			RecommendedResponse:   recommended,
		})
	}

	return Result{
		Summary: Summary{
			TotalMeetings: len(transcripts),
			WonMeetings:   wonCount,
			LostMeetings:  lostCount,
			AnalysisDate:  at.UTC(),
		},
		EngagementMoments:   moments,
		EffectiveQuestions:  questions,
		Objections:          objections,
		PlaybookSuggestions: suggestions(pb),
	}
}

func suggestions(pb playbook) []PlaybookSuggestion {
	out := make([]PlaybookSuggestion, 0,
		1+len(pb.DiscoveryQuestions)+len(pb.EngagementTactics)+len(pb.ClosingChecklist)+len(pb.RedFlags))

	out = append(out, PlaybookSuggestion{
		Section: SectionOpening,
		Content: pb.OpeningScript.Script,
		BasedOn: "Key elements: " + strings.Join(pb.OpeningScript.KeyElements, ", "),
	})
	for _, dq := range pb.DiscoveryQuestions {
		out = append(out, PlaybookSuggestion{
			Section: SectionDiscovery,
			Content: fmt.Sprintf("%s - %s", dq.Question, dq.Purpose),
			BasedOn: fmt.Sprintf("Timing: %s, Follow-up: %s", dq.Timing, dq.FollowUp),
		})
	}
	for _, et := range pb.EngagementTactics {
		out = append(out, PlaybookSuggestion{
			Section: SectionEngagement,
			Content: et.Tactic,
			BasedOn: fmt.Sprintf("When to use: %s. Example: %s", et.WhenToUse, et.Example),
		})
	}
	for _, cc := range pb.ClosingChecklist {
		out = append(out, PlaybookSuggestion{
			Section: SectionClosing,
			Content: cc.Item,
			BasedOn: cc.Why,
		})
	}
	for _, rf := range pb.RedFlags {
		out = append(out, PlaybookSuggestion{
			Section: SectionRedFlags,
			Content: fmt.Sprintf("%s: %s", rf.Flag, rf.WhatItMeans),
			BasedOn: "How to recover: " + rf.HowToRecover,
		})
	}
	return out
}
