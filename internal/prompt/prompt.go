// Package prompt assembles the backend payload from a request, its tone and
// the caller's recent history.
package prompt

import (
	"fmt"
	"strings"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

const historyDigestRunes = 50

// Payload is what a backend receives: standing instructions and the turn to answer.
type Payload struct {
	System string
	User   string
}

// Combined flattens the payload for single-prompt backends and cache keys.
func (p Payload) Combined() string {
	return p.System + "\n\n" + p.User
}

type Assembler struct {
	templates *Templates
}

func NewAssembler(t *Templates) *Assembler {
	return &Assembler{templates: t}
}

// Build is pure: the same request and history always yield the same payload.
// Order: tone overlay, mode instructions, trait block, history block, request text.
func (a *Assembler) Build(req models.AnalysisRequest, recent []models.HistoryEntry) (Payload, error) {
	tone, ok := a.templates.Tones[req.ToneMode]
	if !ok {
		return Payload{}, fmt.Errorf("no template for tone %q", req.ToneMode)
	}
	mode, ok := a.templates.Modes[req.Mode]
	if !ok {
		return Payload{}, fmt.Errorf("no template for mode %q", req.Mode)
	}

	system := strings.TrimSpace(tone) + "\n\n" + strings.TrimSpace(mode.Instructions)

	var user strings.Builder
	user.WriteString(strings.TrimSpace(mode.Lead))
	user.WriteString(a.traitBlock(req.SelfTrait, req.OtherTrait))
	user.WriteString(a.historyBlock(recent))
	user.WriteString("\n\n")
	user.WriteString(req.Text)

	return Payload{System: system, User: user.String()}, nil
}

func (a *Assembler) traitBlock(self, other string) string {
	self, other = strings.TrimSpace(self), strings.TrimSpace(other)
	if self == "" && other == "" {
		return ""
	}
	t := a.templates.Traits
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(t.Header)
	b.WriteString("\n")
	if self != "" {
		fmt.Fprintf(&b, "- %s: %s\n", t.SelfLabel, self)
	}
	if other != "" {
		fmt.Fprintf(&b, "- %s: %s\n", t.OtherLabel, other)
	}
	if t.Guidance != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(t.Guidance))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) historyBlock(recent []models.HistoryEntry) string {
	if len(recent) == 0 {
		return ""
	}
	t := a.templates.History
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(t.Header)
	for i, e := range recent {
		fmt.Fprintf(&b, "\n%d. %s", i+1, RenderHistoryLine(e))
	}
	if t.Guidance != "" {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(t.Guidance))
	}
	return b.String()
}

// RenderHistoryLine formats one entry as "[mode] first-50-runes → summary".
func RenderHistoryLine(e models.HistoryEntry) string {
	return fmt.Sprintf("[%s] %s → %s", e.Mode, models.TruncateRunes(e.InputDigest, historyDigestRunes), e.SummaryLine)
}
