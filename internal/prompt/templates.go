package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

//go:embed templates.yaml
var defaultTemplates []byte

type ModeTemplate struct {
	Lead         string `yaml:"lead"`
	Instructions string `yaml:"instructions"`
}

type TraitTemplate struct {
	Header     string `yaml:"header"`
	SelfLabel  string `yaml:"self_label"`
	OtherLabel string `yaml:"other_label"`
	Guidance   string `yaml:"guidance"`
}

type HistoryTemplate struct {
	Header   string `yaml:"header"`
	Guidance string `yaml:"guidance"`
}

// Templates holds the instruction wording. The assembler treats every
// string as opaque text.
type Templates struct {
	Tones   map[models.ToneMode]string   `yaml:"tones"`
	Modes   map[models.Mode]ModeTemplate `yaml:"modes"`
	Traits  TraitTemplate                `yaml:"traits"`
	History HistoryTemplate              `yaml:"history"`
}

// DefaultTemplates returns the embedded template set.
func DefaultTemplates() (*Templates, error) {
	return ParseTemplates(defaultTemplates)
}

// LoadTemplates reads a YAML template file, or the embedded set when path is empty.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return DefaultTemplates()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(data)
}

func ParseTemplates(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Templates) validate() error {
	var errs []error
	for _, tone := range []models.ToneMode{models.ToneWarm, models.ToneDirect} {
		if strings.TrimSpace(t.Tones[tone]) == "" {
			errs = append(errs, fmt.Errorf("tones.%s is empty", tone))
		}
	}
	for _, mode := range []models.Mode{models.ModeMessage, models.ModeConcern} {
		m := t.Modes[mode]
		if strings.TrimSpace(m.Instructions) == "" {
			errs = append(errs, fmt.Errorf("modes.%s.instructions is empty", mode))
		}
		if strings.TrimSpace(m.Lead) == "" {
			errs = append(errs, fmt.Errorf("modes.%s.lead is empty", mode))
		}
	}
	if t.Traits.Header == "" || t.Traits.SelfLabel == "" || t.Traits.OtherLabel == "" {
		errs = append(errs, errors.New("traits header and labels are required"))
	}
	if t.History.Header == "" {
		errs = append(errs, errors.New("history.header is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid templates: %w", errors.Join(errs...))
	}
	return nil
}
