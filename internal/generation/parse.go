package generation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed draft.schema.json
var draftSchemaJSON string

var draftSchema = gojsonschema.NewStringLoader(draftSchemaJSON)

var (
	jsonFence   = regexp.MustCompile("(?is)^```(?:json)?\\s*(.*?)\\s*```$")
	sqlFence    = regexp.MustCompile("(?is)```sql\\s+(.*?)\\s*```")
	sqlSection  = regexp.MustCompile(`(?is)SQL:\s+(.*?)(?:\n\s*\n|ASSUMPTIONS:|RESULT:|$)`)
	bareSelect  = regexp.MustCompile(`(?is)\b(SELECT\b.*?;)`)
	reasoningRe = regexp.MustCompile(`(?is)REASONING:(.*?)(?:STRATEGY:|SQL:|$)`)
	strategyRe  = regexp.MustCompile(`(?is)STRATEGY:(.*?)(?:SQL:|$)`)
	assumeRe    = regexp.MustCompile(`(?is)ASSUMPTIONS:(.*?)(?:RESULT:|$)`)
	bulletRe    = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s+`)
)

type rawDraft struct {
	SQL         string          `json:"sql"`
	Reasoning   json.RawMessage `json:"reasoning"`
	Strategy    json.RawMessage `json:"strategy"`
	Assumptions json.RawMessage `json:"assumptions"`
}

// ParseDraft extracts a draft from a model response. A JSON object matching
// the draft schema is preferred; otherwise the SQL is taken from a ```sql
// fence, a "SQL:" section or the first terminated SELECT, and the REASONING,
// STRATEGY and ASSUMPTIONS sections become the rationale.
func ParseDraft(text string) (Draft, error) {
	body := strings.TrimSpace(text)
	if m := jsonFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}

	var schemaErr error
	if strings.HasPrefix(body, "{") {
		d, err := parseJSONDraft(body)
		if err == nil {
			return d, nil
		}
		schemaErr = err
	}

	d, err := parseTextDraft(text)
	if err != nil {
		if schemaErr != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrNoSQL, schemaErr)
		}
		return Draft{}, err
	}
	return d, nil
}

func parseJSONDraft(body string) (Draft, error) {
	result, err := gojsonschema.Validate(draftSchema, gojsonschema.NewStringLoader(body))
	if err != nil {
		return Draft{}, fmt.Errorf("failed to validate draft: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return Draft{}, fmt.Errorf("invalid draft: %s", strings.Join(problems, "; "))
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Draft{}, fmt.Errorf("failed to decode draft: %w", err)
	}

	return Draft{
		SQL:         strings.TrimSpace(raw.SQL),
		Reasoning:   decodeLines(raw.Reasoning),
		Strategy:    decodeLines(raw.Strategy),
		Assumptions: decodeLines(raw.Assumptions),
	}, nil
}

// decodeLines accepts a string or an array of strings.
func decodeLines(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanLines(list)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return cleanLines(strings.Split(s, "\n"))
	}
	return nil
}

func parseTextDraft(text string) (Draft, error) {
	var d Draft

	switch {
	case sqlFence.MatchString(text):
		d.SQL = sqlFence.FindStringSubmatch(text)[1]
	case sqlSection.MatchString(text):
		d.SQL = sqlSection.FindStringSubmatch(text)[1]
	case bareSelect.MatchString(text):
		d.SQL = bareSelect.FindStringSubmatch(text)[1]
	default:
		trimmed := strings.TrimSpace(text)
		upper := strings.ToUpper(trimmed)
		if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
			return Draft{}, ErrNoSQL
		}
		d.SQL = trimmed
	}

	d.SQL = strings.TrimSpace(d.SQL)
	if d.SQL == "" {
		return Draft{}, ErrNoSQL
	}

	d.Reasoning = section(reasoningRe, text)
	d.Strategy = section(strategyRe, text)
	d.Assumptions = section(assumeRe, text)
	return d, nil
}

func section(re *regexp.Regexp, text string) []string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return cleanLines(strings.Split(m[1], "\n"))
}

// cleanLines trims lines, strips list markers and drops empty lines.
func cleanLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(bulletRe.ReplaceAllString(strings.TrimSpace(l), ""))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
