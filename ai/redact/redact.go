// Package redact detects and masks personally identifiable information with
// compiled regular expressions. It backs the PII analyzer's fallback path
// and the deterministic mock service, so PII keeps being caught during model
// outages.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"github.com/supportpulse/supportpulse/model"
)

// Mask replaces every detected PII span in output text.
const Mask = "[REDACTED]"

var patterns = []struct {
	entity model.PIIEntityType
	re     *regexp.Regexp
	// group selects the capture group holding the sensitive span; 0 means
	// the whole match.
	group int
}{
	{model.PIIEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), 0},
	{model.PIISSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), 0},
	{model.PIICreditCard, regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b`), 0},
	{model.PIIAccountNumber, regexp.MustCompile(`(?i)account\s+(?:number\s+)?(?:ending\s+)?#?(\d{3,})`), 1},
	{model.PIIPhone, regexp.MustCompile(`\+?\d{8,15}\b`), 0},
	{model.PIIName, regexp.MustCompile(`(?i:my name is) ([A-Z][a-z]+(?: [A-Z][a-z]+)+)`), 1},
}

// Detect scans text and returns the detected entities, ordered by start
// index, with overlapping matches collapsed to the earliest one.
func Detect(text string) []model.PIIEntity {
	var entities []model.PIIEntity
	for _, p := range patterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[2*p.group], idx[2*p.group+1]
			if start < 0 || end <= start {
				continue
			}
			entities = append(entities, model.PIIEntity{
				Type:          p.entity,
				RedactedValue: Mask,
				Start:         start,
				End:           end,
			})
		}
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].End > entities[j].End
	})

	// Drop spans swallowed by an earlier, wider match.
	out := entities[:0]
	lastEnd := -1
	for _, e := range entities {
		if e.Start < lastEnd {
			continue
		}
		out = append(out, e)
		lastEnd = e.End
	}
	return out
}

// Redact returns the detected entities along with the text with every
// detected span replaced by the mask.
func Redact(text string) ([]model.PIIEntity, string) {
	entities := Detect(text)
	if len(entities) == 0 {
		return nil, text
	}

	var sb strings.Builder
	prev := 0
	for _, e := range entities {
		sb.WriteString(text[prev:e.Start])
		sb.WriteString(Mask)
		prev = e.End
	}
	sb.WriteString(text[prev:])
	return entities, sb.String()
}
