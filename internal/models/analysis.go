package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMissingField reports a result that lacks a mandatory field for its mode.
var ErrMissingField = errors.New("missing mandatory field")

// AnalysisResult is implemented by exactly one variant per Mode.
type AnalysisResult interface {
	Mode() Mode
	// Validate reports the first mandatory field that is absent or empty.
	Validate() error
	// SummaryLine condenses the result into the line kept in a client's history.
	SummaryLine() string
}

// Score is a 0-100 value. Backends emit it as a number or a numeric string.
type Score int

func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		data = []byte(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = Score(math.Round(f))
	return nil
}

type PsychologyBasis struct {
	Theory      string `json:"theory"`
	Explanation string `json:"explanation"`
	Source      string `json:"source,omitempty"`
}

type WhatDoYouWant struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Note     string   `json:"note,omitempty"`
}

type TheirProfile struct {
	PersonalityTraits  string `json:"personality_traits"`
	CommunicationStyle string `json:"communication_style"`
	UncertaintyNote    string `json:"uncertainty_note,omitempty"`
}

type MessageEmotionalState struct {
	CurrentFeelings string `json:"current_feelings"`
	WhyYouCare      string `json:"why_you_care"`
}

type BehaviorAnalysis struct {
	EvolutionaryPerspective string `json:"evolutionary_perspective"`
	PsychologicalMotivation string `json:"psychological_motivation"`
	UnconsciousNeeds        string `json:"unconscious_needs"`
}

type ExecutionGuide struct {
	Timing   string `json:"timing"`
	Tone     string `json:"tone"`
	Followup string `json:"followup"`
}

type ReplySuggestion struct {
	Option              string          `json:"option"`
	WhatThisAchieves    string          `json:"what_this_achieves,omitempty"`
	PsychologicalEffect string          `json:"psychological_effect,omitempty"`
	ExactExamples       []string        `json:"exact_examples,omitempty"`
	HowToExecute        *ExecutionGuide `json:"how_to_execute,omitempty"`
	TheoryBasis         string          `json:"theory_basis,omitempty"`
	TheoryExplanation   string          `json:"theory_explanation,omitempty"`
	Pros                string          `json:"pros,omitempty"`
	Cons                string          `json:"cons,omitempty"`
	WhenToUse           string          `json:"when_to_use,omitempty"`
}

type BehaviorEvaluation struct {
	HealthySigns    []string `json:"healthy_signs"`
	ConcerningSigns []string `json:"concerning_signs"`
	RedFlags        []string `json:"red_flags"`
	BoundaryGuide   string   `json:"boundary_guide"`
}

// MessageAnalysis is the result variant for ModeMessage.
type MessageAnalysis struct {
	ConfidenceLevel    string                `json:"confidence_level"`
	Emotion            string                `json:"emotion"`
	InterestLevel      *Score                `json:"interest_level"`
	InterestAnalysis   string                `json:"interest_analysis"`
	AttachmentStyle    string                `json:"attachment_style,omitempty"`
	RelationshipStage  string                `json:"relationship_stage,omitempty"`
	ToneAnalysis       string                `json:"tone_analysis,omitempty"`
	TheirProfile       TheirProfile          `json:"their_profile"`
	YourEmotionalState MessageEmotionalState `json:"your_emotional_state"`
	BehaviorAnalysis   *BehaviorAnalysis     `json:"behavior_analysis,omitempty"`
	PsychologyBasis    []PsychologyBasis     `json:"psychology_basis"`
	WhatDoYouWant      *WhatDoYouWant        `json:"what_do_you_want,omitempty"`
	ReplySuggestions   []ReplySuggestion     `json:"reply_suggestions"`
	Warnings           []string              `json:"warnings"`
	BehaviorEvaluation *BehaviorEvaluation   `json:"behavior_evaluation,omitempty"`
	OverallAdvice      string                `json:"overall_advice"`
	ThreeLineSummary   []string              `json:"three_line_summary"`
}

func (a *MessageAnalysis) Mode() Mode { return ModeMessage }

func (a *MessageAnalysis) Validate() error {
	var v validator
	v.text("confidence_level", a.ConfidenceLevel)
	v.text("emotion", a.Emotion)
	if a.InterestLevel == nil {
		v.fail("interest_level")
	} else if *a.InterestLevel < 0 || *a.InterestLevel > 100 {
		v.fail("interest_level (out of range)")
	}
	v.text("interest_analysis", a.InterestAnalysis)
	v.text("their_profile.personality_traits", a.TheirProfile.PersonalityTraits)
	v.text("their_profile.communication_style", a.TheirProfile.CommunicationStyle)
	v.text("your_emotional_state.current_feelings", a.YourEmotionalState.CurrentFeelings)
	v.text("your_emotional_state.why_you_care", a.YourEmotionalState.WhyYouCare)
	v.basis(a.PsychologyBasis)
	if len(a.ReplySuggestions) == 0 {
		v.fail("reply_suggestions")
	}
	for i, s := range a.ReplySuggestions {
		v.text(fmt.Sprintf("reply_suggestions[%d].option", i), s.Option)
	}
	v.lines("warnings", a.Warnings)
	v.text("overall_advice", a.OverallAdvice)
	v.summary(a.ThreeLineSummary)
	return v.err
}

func (a *MessageAnalysis) SummaryLine() string {
	return summaryLine(a.ThreeLineSummary, a.OverallAdvice)
}

type ConcernEmotionalState struct {
	DominantEmotions string `json:"dominant_emotions"`
	EmotionalNeeds   string `json:"emotional_needs"`
}

type RootCauseAnalysis struct {
	EvolutionaryPerspective string `json:"evolutionary_perspective"`
	PsychologicalPatterns   string `json:"psychological_patterns"`
	UnderlyingNeeds         string `json:"underlying_needs"`
}

type Solution struct {
	Solution            string   `json:"solution"`
	WhatThisAchieves    string   `json:"what_this_achieves,omitempty"`
	PsychologicalEffect string   `json:"psychological_effect,omitempty"`
	StepByStep          []string `json:"step_by_step,omitempty"`
	ExactScript         string   `json:"exact_script,omitempty"`
	PracticalTips       []string `json:"practical_tips,omitempty"`
	TheoryBasis         string   `json:"theory_basis,omitempty"`
	TheoryExplanation   string   `json:"theory_explanation,omitempty"`
	Pros                string   `json:"pros,omitempty"`
	Cons                string   `json:"cons,omitempty"`
	WhenToUse           string   `json:"when_to_use,omitempty"`
}

type RelationshipHealthCheck struct {
	HealthyAspects         []string `json:"healthy_aspects"`
	ConcerningAspects      []string `json:"concerning_aspects"`
	RedFlags               []string `json:"red_flags"`
	BoundaryRecommendation string   `json:"boundary_recommendation"`
}

// ConcernAnalysis is the result variant for ModeConcern.
type ConcernAnalysis struct {
	ConfidenceLevel         string                   `json:"confidence_level"`
	SituationSummary        string                   `json:"situation_summary"`
	YourEmotionalState      ConcernEmotionalState    `json:"your_emotional_state"`
	RootCauseAnalysis       *RootCauseAnalysis       `json:"root_cause_analysis,omitempty"`
	PsychologyBasis         []PsychologyBasis        `json:"psychology_basis"`
	WhatDoYouWant           *WhatDoYouWant           `json:"what_do_you_want,omitempty"`
	Solutions               []Solution               `json:"solutions"`
	Warnings                []string                 `json:"warnings"`
	RelationshipHealthCheck *RelationshipHealthCheck `json:"relationship_health_check,omitempty"`
	OverallAdvice           string                   `json:"overall_advice"`
	ThreeLineSummary        []string                 `json:"three_line_summary"`
}

func (a *ConcernAnalysis) Mode() Mode { return ModeConcern }

func (a *ConcernAnalysis) Validate() error {
	var v validator
	v.text("confidence_level", a.ConfidenceLevel)
	v.text("situation_summary", a.SituationSummary)
	v.text("your_emotional_state.dominant_emotions", a.YourEmotionalState.DominantEmotions)
	v.text("your_emotional_state.emotional_needs", a.YourEmotionalState.EmotionalNeeds)
	v.basis(a.PsychologyBasis)
	if len(a.Solutions) == 0 {
		v.fail("solutions")
	}
	for i, s := range a.Solutions {
		v.text(fmt.Sprintf("solutions[%d].solution", i), s.Solution)
	}
	v.lines("warnings", a.Warnings)
	v.text("overall_advice", a.OverallAdvice)
	v.summary(a.ThreeLineSummary)
	return v.err
}

func (a *ConcernAnalysis) SummaryLine() string {
	return summaryLine(a.ThreeLineSummary, a.OverallAdvice)
}

// NewResult returns an empty variant for mode, ready for decoding.
func NewResult(mode Mode) (AnalysisResult, error) {
	switch mode {
	case ModeMessage:
		return &MessageAnalysis{}, nil
	case ModeConcern:
		return &ConcernAnalysis{}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

const summaryFallbackRunes = 100

func summaryLine(lines []string, advice string) string {
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0])
	}
	return TruncateRunes(strings.TrimSpace(advice), summaryFallbackRunes)
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// validator keeps the first failure only.
type validator struct {
	err error
}

func (v *validator) fail(field string) {
	if v.err == nil {
		v.err = fmt.Errorf("%w: %s", ErrMissingField, field)
	}
}

func (v *validator) text(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field)
	}
}

func (v *validator) lines(field string, values []string) {
	if len(values) == 0 {
		v.fail(field)
		return
	}
	for i, s := range values {
		v.text(fmt.Sprintf("%s[%d]", field, i), s)
	}
}

func (v *validator) basis(items []PsychologyBasis) {
	if len(items) == 0 {
		v.fail("psychology_basis")
		return
	}
	for i, b := range items {
		v.text(fmt.Sprintf("psychology_basis[%d].theory", i), b.Theory)
		v.text(fmt.Sprintf("psychology_basis[%d].explanation", i), b.Explanation)
	}
}

func (v *validator) summary(lines []string) {
	if len(lines) != 3 {
		v.fail("three_line_summary (need 3 lines)")
		return
	}
	v.lines("three_line_summary", lines)
}
