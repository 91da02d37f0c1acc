package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

const fence = "```"

var (
	// ErrParse wraps every reason backend text could not become a result.
	ErrParse = errors.New("unusable backend output")
	// ErrUnterminatedFence means an opening fence has no closing fence.
	ErrUnterminatedFence = errors.New("unterminated code fence")
	// ErrMissingField is returned (wrapped in ErrParse) when a decoded result
	// lacks a mandatory field for its mode.
	ErrMissingField = models.ErrMissingField
)

// Extraction is the structured payload located inside backend text.
type Extraction struct {
	Body   string
	Fenced bool
}

// ExtractPayload locates the structured payload in raw. Text that is already
// a JSON object is the payload as is, even when a string value contains a
// fence marker. Otherwise the first fence marker opens a block, an optional
// language tag is dropped, and the next fence marker closes it. Without a
// fence the whole text is the payload.
func ExtractPayload(raw string) (Extraction, error) {
	trimmed := strings.TrimSpace(raw)
	if isJSONObject(trimmed) {
		return Extraction{Body: trimmed}, nil
	}
	start := strings.Index(raw, fence)
	if start < 0 {
		return Extraction{Body: trimmed}, nil
	}
	rest := raw[start+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return Extraction{}, ErrUnterminatedFence
	}
	body := rest[:end]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isLanguageTag(body[:nl]) {
		body = body[nl+1:]
	} else {
		body = stripInlineTag(body)
	}
	return Extraction{Body: strings.TrimSpace(body), Fenced: true}, nil
}

func isLanguageTag(line string) bool {
	return !strings.ContainsAny(strings.TrimSpace(line), "{[\" \t")
}

// stripInlineTag drops a tag word on the same line as the payload, as in
// "```json {...}```".
func stripInlineTag(body string) string {
	s := strings.TrimLeft(body, " \t")
	i := strings.IndexAny(s, " \t")
	if i <= 0 || !isLanguageTag(s[:i]) {
		return body
	}
	return s[i+1:]
}

func isJSONObject(s string) bool {
	return gjson.Valid(s) && gjson.Parse(s).IsObject()
}

// Parse decodes backend text into the result variant for mode. Any failure
// discards the whole result; nothing is merged with defaults.
func Parse(raw string, mode models.Mode) (models.AnalysisResult, error) {
	ext, err := ExtractPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if ext.Body == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrParse)
	}
	if !isJSONObject(ext.Body) {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrParse)
	}

	result, err := models.NewResult(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if err := json.Unmarshal([]byte(ext.Body), result); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrParse, err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return result, nil
}
