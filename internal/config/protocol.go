package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/kaptinlin/jsonschema"

	"github.com/satindergrewal/tonalstudy/internal/fault"
)

//go:embed default_protocol.yaml
var defaultProtocolYAML []byte

//go:embed protocol.schema.json
var protocolSchemaJSON []byte

// Question kinds.
const (
	KindChoice = "choice"
	KindText   = "text"
)

// Condition gates a question on an earlier answer.
type Condition struct {
	Field  string `yaml:"field"`
	Equals string `yaml:"equals"`
}

// Question is one questionnaire item. ID is the log column it fills.
type Question struct {
	ID      string     `yaml:"id"`
	Prompt  string     `yaml:"prompt"`
	Kind    string     `yaml:"type"`
	Options []string   `yaml:"options"`
	When    *Condition `yaml:"when"`
}

// Asked reports whether q applies given the answers collected so far.
func (q Question) Asked(answers map[string]string) bool {
	if q.When == nil {
		return true
	}
	return answers[q.When.Field] == q.When.Equals
}

// Protocol holds every participant-facing text and questionnaire item.
// Screen texts may use {trial}, {total} and {next} placeholders.
type Protocol struct {
	Title         string     `yaml:"title"`
	Welcome       []string   `yaml:"welcome"`
	TrialStart    string     `yaml:"trial_start"`
	Playing       string     `yaml:"playing"`
	PaperRating   string     `yaml:"paper_rating"`
	BetweenTrials string     `yaml:"between_trials"`
	Goodbye       string     `yaml:"goodbye"`
	PoolSize      string     `yaml:"pool_size_message"` // startup diagnostic, optional
	Demographics  []Question `yaml:"demographics"`
	Ratings       []Question `yaml:"ratings"`
}

// Fill substitutes trial placeholders in a screen text.
func Fill(text string, trial, total int) string {
	return strings.NewReplacer(
		"{trial}", strconv.Itoa(trial),
		"{total}", strconv.Itoa(total),
		"{next}", strconv.Itoa(trial+1),
	).Replace(text)
}

// DefaultProtocol returns the built-in protocol.
func DefaultProtocol() Protocol {
	p, err := ParseProtocol(defaultProtocolYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in protocol is invalid: %v", err))
	}
	return p
}

// LoadProtocol reads a YAML protocol file. An empty path yields the built-in
// protocol.
func LoadProtocol(path string) (Protocol, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return DefaultProtocol(), nil
	}
	content, err := os.ReadFile(trimmed)
	if err != nil {
		return Protocol{}, fault.Wrap(fmt.Errorf("read protocol: %w", err), fault.KindConfig, fault.CodeProtocolInvalid)
	}
	return ParseProtocol(content)
}

// ParseProtocol validates YAML content against the protocol schema and
// decodes it.
func ParseProtocol(content []byte) (Protocol, error) {
	asJSON, err := yaml.YAMLToJSON(content)
	if err != nil {
		return Protocol{}, fault.Wrap(fmt.Errorf("parse protocol: %w", err), fault.KindConfig, fault.CodeProtocolInvalid)
	}
	if err := validateProtocol(asJSON); err != nil {
		return Protocol{}, fault.Wrap(err, fault.KindConfig, fault.CodeProtocolInvalid)
	}

	var p Protocol
	if err := yaml.Unmarshal(content, &p); err != nil {
		return Protocol{}, fault.Wrap(fmt.Errorf("decode protocol: %w", err), fault.KindConfig, fault.CodeProtocolInvalid)
	}
	p.normalize()
	if err := p.checkConditions(); err != nil {
		return Protocol{}, fault.Wrap(err, fault.KindConfig, fault.CodeProtocolInvalid)
	}
	return p, nil
}

func validateProtocol(data []byte) error {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(protocolSchemaJSON)
	if err != nil {
		return fmt.Errorf("compile protocol schema: %w", err)
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("protocol validation failed: %v", result.Errors)
}

func (p *Protocol) normalize() {
	p.Title = strings.TrimSpace(p.Title)
	for i := range p.Welcome {
		p.Welcome[i] = strings.TrimRight(p.Welcome[i], "\n")
	}
	p.TrialStart = strings.TrimRight(p.TrialStart, "\n")
	p.Playing = strings.TrimRight(p.Playing, "\n")
	p.PaperRating = strings.TrimRight(p.PaperRating, "\n")
	p.BetweenTrials = strings.TrimRight(p.BetweenTrials, "\n")
	p.Goodbye = strings.TrimRight(p.Goodbye, "\n")
	p.PoolSize = strings.TrimSpace(p.PoolSize)
	for _, qs := range [][]Question{p.Demographics, p.Ratings} {
		for i := range qs {
			qs[i].ID = strings.TrimSpace(qs[i].ID)
			qs[i].Kind = strings.ToLower(strings.TrimSpace(qs[i].Kind))
		}
	}
}

// checkConditions makes sure every gate refers to a question asked earlier
// and that choices can actually be chosen between.
func (p *Protocol) checkConditions() error {
	for _, qs := range [][]Question{p.Demographics, p.Ratings} {
		seen := make(map[string]bool, len(qs))
		for _, q := range qs {
			if q.When != nil && !seen[q.When.Field] {
				return fmt.Errorf("question %q depends on %q, which is not asked before it", q.ID, q.When.Field)
			}
			if q.Kind == KindChoice && len(q.Options) < 2 {
				return fmt.Errorf("choice question %q needs at least two options", q.ID)
			}
			if seen[q.ID] {
				return fmt.Errorf("question %q appears twice", q.ID)
			}
			seen[q.ID] = true
		}
	}
	return nil
}
