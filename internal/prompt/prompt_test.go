package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

const testTemplates = `
tones:
  warm: "TONE-WARM"
  direct: "TONE-DIRECT"
modes:
  message:
    lead: "LEAD-MESSAGE"
    instructions: "BASE-MESSAGE"
  concern:
    lead: "LEAD-CONCERN"
    instructions: "BASE-CONCERN"
traits:
  header: "TRAITS"
  self_label: "Mine"
  other_label: "Theirs"
  guidance: "TRAIT-GUIDE"
history:
  header: "HISTORY"
  guidance: "HISTORY-GUIDE"
`

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	tpl, err := ParseTemplates([]byte(testTemplates))
	require.NoError(t, err)
	return NewAssembler(tpl)
}

func TestBuild_ConcatenationOrder(t *testing.T) {
	a := newTestAssembler(t)
	req := models.AnalysisRequest{
		Text:       "are you free saturday?",
		Mode:       models.ModeMessage,
		ToneMode:   models.ToneDirect,
		SelfTrait:  "INFP",
		OtherTrait: "ESTJ",
	}
	recent := []models.HistoryEntry{{
		Mode:        models.ModeConcern,
		InputDigest: "they left me on read",
		SummaryLine: "give it time",
		Timestamp:   time.Now(),
	}}

	p, err := a.Build(req, recent)
	require.NoError(t, err)

	full := p.Combined()
	order := []string{"TONE-DIRECT", "BASE-MESSAGE", "LEAD-MESSAGE", "TRAITS", "- Mine: INFP", "- Theirs: ESTJ", "HISTORY", "[concern] they left me on read → give it time", "HISTORY-GUIDE", "are you free saturday?"}
	last := -1
	for _, part := range order {
		idx := strings.Index(full, part)
		require.GreaterOrEqual(t, idx, 0, "missing %q", part)
		assert.Greater(t, idx, last, "%q out of order", part)
		last = idx
	}
	assert.True(t, strings.HasSuffix(p.User, "\n\nare you free saturday?"))
	assert.Equal(t, "TONE-DIRECT\n\nBASE-MESSAGE", p.System)
}

func TestBuild_OmitsEmptyBlocks(t *testing.T) {
	a := newTestAssembler(t)
	p, err := a.Build(models.AnalysisRequest{Text: "hi", Mode: models.ModeConcern, ToneMode: models.ToneWarm}, nil)
	require.NoError(t, err)

	assert.Equal(t, "LEAD-CONCERN\n\nhi", p.User)
	assert.NotContains(t, p.Combined(), "TRAITS")
	assert.NotContains(t, p.Combined(), "HISTORY")
}

func TestBuild_OnlyOneTrait(t *testing.T) {
	a := newTestAssembler(t)
	p, err := a.Build(models.AnalysisRequest{Text: "hi", Mode: models.ModeMessage, ToneMode: models.ToneWarm, OtherTrait: "ENFP"}, nil)
	require.NoError(t, err)
	assert.Contains(t, p.User, "- Theirs: ENFP")
	assert.NotContains(t, p.User, "Mine")
}

func TestBuild_Deterministic(t *testing.T) {
	a := newTestAssembler(t)
	req := models.AnalysisRequest{Text: "same", Mode: models.ModeMessage, ToneMode: models.ToneWarm, SelfTrait: "INTJ"}
	p1, err := a.Build(req, nil)
	require.NoError(t, err)
	p2, err := a.Build(req, nil)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestBuild_UnknownModeFails(t *testing.T) {
	a := newTestAssembler(t)
	_, err := a.Build(models.AnalysisRequest{Text: "x", Mode: "gossip", ToneMode: models.ToneWarm}, nil)
	assert.Error(t, err)
}

func TestRenderHistoryLine_TruncatesInput(t *testing.T) {
	e := models.HistoryEntry{Mode: models.ModeMessage, InputDigest: strings.Repeat("a", 80), SummaryLine: "ok"}
	assert.Equal(t, "[message] "+strings.Repeat("a", 50)+" → ok", RenderHistoryLine(e))
}

func TestDefaultTemplates_Valid(t *testing.T) {
	tpl, err := DefaultTemplates()
	require.NoError(t, err)
	assert.Contains(t, tpl.Modes[models.ModeMessage].Instructions, "three_line_summary")
	assert.Contains(t, tpl.Modes[models.ModeConcern].Instructions, "solutions")
}

func TestParseTemplates_RejectsIncomplete(t *testing.T) {
	_, err := ParseTemplates([]byte("tones:\n  warm: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tones.direct")
}

func TestLoadTemplates_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testTemplates), 0o644))

	tpl, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, "TONE-WARM", tpl.Tones[models.ToneWarm])

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
