package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kpetrov/driplane/internal/domain"
)

// TemplateSeed is the YAML shape of one message template. The file format is
// what content editors maintain; see LoadTemplates for validation rules.
type TemplateSeed struct {
	// Step is the lifecycle step this template addresses.
	Step string `yaml:"step"`

	// DelayMinutes is how long the step timer must have run before this
	// template fires.
	DelayMinutes int `yaml:"delay_minutes"`

	// Tag classifies the message for stale-trigger cleanup.
	Tag string `yaml:"tag"`

	// Kind selects the delivery shape; defaults to text.
	Kind string `yaml:"kind,omitempty"`

	// Body is the message text, with optional {{field}} placeholders
	// substituted from the order payload.
	Body string `yaml:"body"`

	// Attachment is a file reference, or the button target for button kind.
	Attachment string `yaml:"attachment,omitempty"`
}

// templateFile is the top-level YAML document.
type templateFile struct {
	Templates []TemplateSeed `yaml:"templates"`
}

// LoadTemplates reads and validates a template seed file.
//
// Validation is strict: an unknown step, tag, or kind fails the whole file
// rather than silently skipping the entry, because a typoed step key would
// otherwise mean a template that never fires and nobody notices.
func LoadTemplates(path string) ([]domain.MessageTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("templates %s: no templates defined", path)
	}

	templates := make([]domain.MessageTemplate, 0, len(file.Templates))
	for i, seed := range file.Templates {
		tmpl, err := seed.toTemplate()
		if err != nil {
			return nil, fmt.Errorf("templates %s: entry %d: %w", path, i+1, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

func (s TemplateSeed) toTemplate() (domain.MessageTemplate, error) {
	step := domain.StepKey(s.Step)
	if !domain.KnownStepKey(step) {
		return domain.MessageTemplate{}, fmt.Errorf("unknown step %q", s.Step)
	}

	tag := domain.MessageTag(s.Tag)
	if !domain.KnownMessageTag(tag) {
		return domain.MessageTemplate{}, fmt.Errorf("unknown tag %q", s.Tag)
	}

	kind := domain.TaskKind(s.Kind)
	if kind == "" {
		kind = domain.TaskText
	}
	if !domain.KnownTaskKind(kind) {
		return domain.MessageTemplate{}, fmt.Errorf("unknown kind %q", s.Kind)
	}

	if s.DelayMinutes < 0 {
		return domain.MessageTemplate{}, fmt.Errorf("negative delay %d", s.DelayMinutes)
	}
	if s.Body == "" && s.Attachment == "" {
		return domain.MessageTemplate{}, fmt.Errorf("template has neither body nor attachment")
	}

	return domain.MessageTemplate{
		Step:         step,
		DelayMinutes: s.DelayMinutes,
		Tag:          tag,
		Kind:         kind,
		Body:         s.Body,
		Attachment:   s.Attachment,
		Active:       true,
	}, nil
}
