package experiment

import (
	"context"
	"strings"

	"github.com/satindergrewal/tonalstudy/internal/config"
)

// ask puts each question to the participant in order. Questions gated on an
// earlier answer that does not match are skipped and recorded as empty.
func ask(ctx context.Context, surface Surface, questions []config.Question) (map[string]string, error) {
	answers := make(map[string]string, len(questions))
	for _, q := range questions {
		if !q.Asked(answers) {
			answers[q.ID] = ""
			continue
		}
		var (
			v   string
			err error
		)
		if q.Kind == config.KindChoice {
			v, err = surface.MultipleChoice(ctx, q.Prompt, q.Options)
		} else {
			v, err = surface.TextInput(ctx, q.Prompt)
		}
		if err != nil {
			return nil, err
		}
		answers[q.ID] = strings.TrimSpace(v)
	}
	return answers, nil
}
