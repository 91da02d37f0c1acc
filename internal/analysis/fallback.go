package analysis

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"unicode/utf8"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

// Labels produced by the offline synthesizer.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
)

const (
	baseScore       = 40
	lengthWeightCap = 20
	markerWeight    = 15
	perturbation    = 20

	shortInputRunes  = 10
	uncertainRunes   = 20
	talkativeRunes   = 30
	highThreshold    = 70
	midThreshold     = 50
	lowThreshold     = 40
	healthyThreshold = 60
)

// RandSource supplies the bounded perturbation used by Synthesizer.
type RandSource interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.IntN(n) }

// Signals are the input features the synthesizer reasons from.
type Signals struct {
	Length     int
	Expressive bool
	Pictograph bool
}

// ReadSignals computes Signals from text alone. Length counts runes.
func ReadSignals(text string) Signals {
	s := Signals{Length: utf8.RuneCountInString(text)}
	for _, r := range text {
		switch {
		case r == '!' || r == 'ㅋ' || r == 'ㅎ':
			s.Expressive = true
		case r >= 0x1F300 && r <= 0x1F9FF:
			s.Pictograph = true
		}
	}
	return s
}

// Synthesizer builds a complete result without calling any backend. Output is
// a pure function of the request and the values drawn from its RandSource.
type Synthesizer struct {
	rand RandSource
}

// NewSynthesizer returns a Synthesizer; a nil src uses the process-wide
// generator.
func NewSynthesizer(src RandSource) *Synthesizer {
	if src == nil {
		src = globalRand{}
	}
	return &Synthesizer{rand: src}
}

// Score is the interest (message) or intensity (concern) value for sig.
func (s *Synthesizer) Score(sig Signals) int {
	score := baseScore + min(sig.Length, lengthWeightCap) + s.rand.Intn(perturbation)
	if sig.Pictograph {
		score += markerWeight
	}
	if sig.Expressive {
		score += markerWeight
	}
	return max(0, min(100, score))
}

// Build returns the result variant for req.Mode.
func (s *Synthesizer) Build(req models.AnalysisRequest) models.AnalysisResult {
	sig := ReadSignals(req.Text)
	score := s.Score(sig)
	if req.Mode == models.ModeConcern {
		return buildConcern(sig, score)
	}
	return buildMessage(sig, score)
}

func confidence(sig Signals) string {
	if sig.Length > shortInputRunes {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// pick3 selects by the high/mid/low band of score.
func pick3(score, high, mid int, a, b, c string) string {
	switch {
	case score > high:
		return a
	case score > mid:
		return b
	}
	return c
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func buildMessage(sig Signals, score int) *models.MessageAnalysis {
	interest := models.Score(score)
	profile := models.TheirProfile{
		PersonalityTraits:  pick(sig.Expressive, "Comes across as upbeat and expressive.", "Likely careful and even-tempered."),
		CommunicationStyle: pick(sig.Length > talkativeRunes, "Shows willingness to keep the conversation going.", "Prefers short, to-the-point exchanges."),
	}
	if sig.Length < uncertainRunes {
		profile.UncertaintyNote = "A single short message is not enough to read someone's personality. More conversation is needed."
	}

	return &models.MessageAnalysis{
		ConfidenceLevel: confidence(sig),
		Emotion:         pick3(score, highThreshold, midThreshold, "positive", "neutral", "somewhat reserved"),
		InterestLevel:   &interest,
		InterestAnalysis: fmt.Sprintf("Weighed message length (%d characters), %s and %s.",
			sig.Length,
			pick(sig.Pictograph, "emoji use", "no emoji"),
			pick(sig.Expressive, "visible emotional expression", "little emotional expression")),
		AttachmentStyle:   pick3(score, highThreshold, midThreshold, "secure", "avoidant", "anxious"),
		RelationshipStage: "getting to know each other",
		ToneAnalysis:      pick(sig.Pictograph && sig.Expressive, "friendly and relaxed", "careful and polite"),
		TheirProfile:      profile,
		YourEmotionalState: models.MessageEmotionalState{
			CurrentFeelings: pick3(score, highThreshold, lowThreshold,
				"You are probably feeling anticipation and excitement.",
				"You are probably feeling some uncertainty and curiosity.",
				"You may be feeling anxious and afraid of rejection."),
			WhyYouCare: "You want to confirm their interest and see where this goes. That is a natural need.",
		},
		BehaviorAnalysis: &models.BehaviorAnalysis{
			EvolutionaryPerspective: pick(sig.Expressive,
				"Open, positive expression works as an alliance signal that invites cooperation.",
				"A guarded tone keeps risk low and protects against losing face."),
			PsychologicalMotivation: pick(sig.Pictograph,
				"Friendly symbols aim to shrink psychological distance.",
				"Holding back emotion can be a defensive way to avoid rejection or keep control."),
			UnconsciousNeeds: pick(sig.Length > talkativeRunes,
				"A long reply signals a wish to be known and acknowledged.",
				"A short reply may limit emotional investment until you show more effort."),
		},
		PsychologyBasis: []models.PsychologyBasis{
			pickBasis(sig.Expressive, mereExposure, scarcity),
			pickBasis(sig.Length > talkativeRunes, reciprocity, zeigarnik),
			anchoring,
		},
		WhatDoYouWant: &models.WhatDoYouWant{
			Question: "What outcome do you want here?",
			Options: []string{
				"Grow closer",
				"Draw more of their attention",
				"Take the lead in the situation",
				"Put some distance in, gently",
			},
			Note: "The best strategy depends on the outcome you want.",
		},
		ReplySuggestions: slices.Clone(messageReplies),
		Warnings: []string{
			"Replying too fast can feel like pressure. Match their pace.",
			"Too many questions can feel like an interrogation.",
			"Heavy use of emoji and laughter can undercut sincerity.",
		},
		BehaviorEvaluation: behaviorEvaluation(sig, score),
		OverallAdvice: fmt.Sprintf("Interest reads at %d%%, a %s signal. %s Mirror their energy rather than outpacing it.",
			score,
			pick3(score, highThreshold, midThreshold, "very positive", "moderate", "somewhat reserved"),
			pick(score > highThreshold, "Things are flowing well, so keep the conversation natural.", "Show interest without adding pressure.")),
		ThreeLineSummary: []string{
			pick3(score, highThreshold, lowThreshold,
				"Positive signals. Good chance this develops.",
				"Neutral signals. Take it slowly.",
				"Reserved signals. Avoid one-sided effort."),
			pick3(score, highThreshold, lowThreshold,
				"Empathize lightly and keep it going with a question.",
				"Keep it low-pressure and follow their pace.",
				"If two or three tries get no response, step back."),
			"Match their reply speed and length. Do not chase.",
		},
	}
}

func behaviorEvaluation(sig Signals, score int) *models.BehaviorEvaluation {
	ev := &models.BehaviorEvaluation{
		HealthySigns:    []string{"They are keeping basic courtesy."},
		ConcerningSigns: []string{},
		RedFlags:        []string{},
		BoundaryGuide: pick3(score, highThreshold, lowThreshold,
			"This is a healthy exchange. Let it develop, and keep checking that interest is mutual.",
			"Closeness is still low. Build trust slowly and let them start some conversations.",
			"Interest looks low. Do not carry the effort alone; give them room to reach out first."),
	}
	if score > healthyThreshold {
		ev.HealthySigns = []string{
			"Reply length shows effort.",
			pick(sig.Pictograph, "Emoji use signals comfort.", "They keep a polite tone."),
			"They show willingness to continue.",
		}
	}
	switch {
	case score < lowThreshold:
		ev.ConcerningSigns = []string{
			"Replies look very short or low-effort.",
			"Little effort to keep the conversation going.",
		}
	case sig.Length < shortInputRunes:
		ev.ConcerningSigns = []string{"The reply is on the short side; they may be busy or not yet close."}
	}
	return ev
}

var (
	mereExposure = models.PsychologyBasis{
		Theory:      "Mere Exposure Effect",
		Explanation: "Frequent, positive contact raises liking because familiarity reads as safety.",
		Source:      "Robert Zajonc",
	}
	scarcity = models.PsychologyBasis{
		Theory:      "Scarcity Principle",
		Explanation: "Restrained expression makes attention feel rarer and therefore more valuable.",
		Source:      "Robert Cialdini",
	}
	reciprocity = models.PsychologyBasis{
		Theory:      "Reciprocity Norm",
		Explanation: "Visible effort creates pressure to answer with similar effort.",
		Source:      "Dennis Regan",
	}
	zeigarnik = models.PsychologyBasis{
		Theory:      "Zeigarnik Effect",
		Explanation: "Short, unfinished exchanges stay on the mind and invite completion.",
		Source:      "Bluma Zeigarnik",
	}
	anchoring = models.PsychologyBasis{
		Theory:      "Anchoring Effect",
		Explanation: "Early messages set the reference point for how the whole relationship is read.",
		Source:      "Amos Tversky & Daniel Kahneman",
	}
	attachment = models.PsychologyBasis{
		Theory:      "Attachment Theory",
		Explanation: "Relationship anxiety often echoes earlier attachment experiences; honest expression builds security.",
		Source:      "John Bowlby, Mary Ainsworth",
	}
	selfDetermination = models.PsychologyBasis{
		Theory:      "Self-Determination Theory",
		Explanation: "Healthy relationships meet needs for autonomy, competence and relatedness.",
		Source:      "Deci & Ryan",
	}
)

func pickBasis(cond bool, a, b models.PsychologyBasis) models.PsychologyBasis {
	if cond {
		return a
	}
	return b
}

var messageReplies = []models.ReplySuggestion{
	{
		Option:           "Empathy plus a light question",
		WhatThisAchieves: "Takes the lead naturally and deepens closeness a step.",
		ExactExamples:    []string{"Haha same here. What do you usually do when that happens?"},
		HowToExecute: &models.ExecutionGuide{
			Timing:   "Within one to three hours.",
			Tone:     "Light and relaxed.",
			Followup: "Listen to the answer and keep the thread going.",
		},
		TheoryBasis: "Social Penetration Theory",
		WhenToUse:   "When they are positive and engaged.",
	},
	{
		Option:           "Humor plus empathy",
		WhatThisAchieves: "Leaves the impression that you are easy and fun to talk to.",
		ExactExamples:    []string{"Wait, this is literally me. We are way too alike 😂"},
		HowToExecute: &models.ExecutionGuide{
			Timing:   "Right away or within the hour.",
			Tone:     "Playful, with an emoji or two.",
			Followup: "If they laugh, share a short story of your own.",
		},
		TheoryBasis: "Similarity-Attraction Hypothesis",
		WhenToUse:   "When the conversation is casual.",
	},
	{
		Option:           "Empathy plus a shared experience",
		WhatThisAchieves: "Opening up first invites them to open up too.",
		ExactExamples:    []string{"I get that. Something similar happened to me last week."},
		HowToExecute: &models.ExecutionGuide{
			Timing:   "Within one or two hours.",
			Tone:     "Sincere but not heavy.",
			Followup: "Keep your story to two or three sentences, then turn back to them.",
		},
		TheoryBasis: "Self-Disclosure Reciprocity",
		WhenToUse:   "When you want the relationship to deepen.",
	},
}

func buildConcern(sig Signals, score int) *models.ConcernAnalysis {
	intense := score > highThreshold
	return &models.ConcernAnalysis{
		ConfidenceLevel: confidence(sig),
		SituationSummary: pick(intense,
			"This concern carries a lot of emotional weight right now. Feeling this strongly is understandable.",
			"You are working through a relationship concern. Feelings like these are natural."),
		YourEmotionalState: models.ConcernEmotionalState{
			DominantEmotions: pick(intense,
				"Strong anxiety and frustration alongside real affection and hope.",
				"Unease and confusion mixed with affection and expectation."),
			EmotionalNeeds: "Reassurance, stability, clear signals from them and the sense that your feelings are understood.",
		},
		RootCauseAnalysis: &models.RootCauseAnalysis{
			EvolutionaryPerspective: "Partner choice once mattered for survival, so uncertainty in relationships triggers strong alarm.",
			PsychologicalPatterns:   "Attachment patterns and thinking traps such as catastrophizing can magnify small problems.",
			UnderlyingNeeds:         "A pull between wanting to be loved and fearing being left.",
		},
		PsychologyBasis: []models.PsychologyBasis{attachment, selfDetermination},
		WhatDoYouWant: &models.WhatDoYouWant{
			Question: "What do you really want from this situation?",
			Options: []string{
				"Improve the relationship",
				"See them change",
				"Find my own peace of mind",
				"Decide whether to end it",
			},
			Note: "The right approach depends on what you want.",
		},
		Solutions: concernSolutions(intense),
		Warnings: []string{
			"Do not try to change them; change only happens when they want it.",
			"Be clear about your values and boundaries.",
			"Red flags such as insults, control or violence mean the relationship needs rethinking.",
		},
		RelationshipHealthCheck: &models.RelationshipHealthCheck{
			HealthyAspects:         []string{"You recognize the problem and want to address it."},
			ConcerningAspects:      []string{"Misunderstandings may be piling up."},
			RedFlags:               []string{"Verbal abuse, gaslighting or isolation call for professional help right away."},
			BoundaryRecommendation: "Healthy relationships respect each other's time and opinions and handle conflict constructively.",
		},
		OverallAdvice: pick(intense,
			"Take care of yourself first, then have one calm, honest conversation. If this keeps hurting, a counselor can help.",
			"Relationships are built by two people. Look at your own needs too, and work through differences together."),
		ThreeLineSummary: []string{
			pick(intense, "Strong feelings are valid. Slow down before acting.", "Relationship worry is natural. No relationship is perfect."),
			"Clear up misunderstandings with an honest talk and rebuild self-worth through self-care.",
			"Do not try to change them; get help if red flags appear.",
		},
	}
}

func concernSolutions(intense bool) []models.Solution {
	talk := models.Solution{
		Solution:         "Try an honest conversation",
		WhatThisAchieves: "Clears up misunderstandings and rebuilds trust.",
		StepByStep: []string{
			"Pick a calm time and place.",
			"Describe your feelings with I-statements.",
			"Listen, then look for a solution together.",
		},
		ExactScript: "I've been thinking a lot about us. Can you give me five minutes? I'm not blaming you, I just want to share how I feel.",
		TheoryBasis: "Emotionally Focused Therapy",
		WhenToUse:   "When uncertainty or misunderstanding is building.",
	}
	observe := models.Solution{
		Solution:         "Give it time and observe",
		WhatThisAchieves: "Lets you judge the situation without being driven by emotion.",
		StepByStep: []string{
			"Note their behavior patterns for two weeks.",
			"Keep a five-minute daily feelings journal.",
			"Review whether the signals are consistent or your reaction is amplified.",
		},
		TheoryBasis: "Cognitive Behavioral Therapy",
		WhenToUse:   "When your feelings are confusing.",
	}
	care := models.Solution{
		Solution:         "Put self-care first",
		WhatThisAchieves: "Restores self-worth and lowers dependence on the relationship.",
		PracticalTips: []string{
			"Reserve time for yourself at least three times a week.",
			"Balance contact roughly fifty-fifty.",
		},
		TheoryBasis: "Self-Determination Theory",
		WhenToUse:   "When the relationship is consuming you.",
	}
	if intense {
		return []models.Solution{care, observe, talk}
	}
	return []models.Solution{talk, observe, care}
}
