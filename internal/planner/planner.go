// Package planner decomposes a natural-language question into a plan: a meta
// answer drawn from the schema, or one or more steps for SQL generation with
// the assumptions and schema facts that ground them.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/askdb/askdb/internal/schema"
)

const (
	// MaxFactValues is the number of distinct values fetched per fact column.
	MaxFactValues = 20
	// MaxFactColumns bounds the fact lookups made for one question.
	MaxFactColumns = 4
)

// FactSource returns sample values of a column.
type FactSource interface {
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
}

// Decomposer turns questions into plans.
type Decomposer struct {
	// Facts is optional; without it plans carry no schema facts.
	Facts FactSource
	// Lexicon overrides DefaultLexicon when non-nil.
	Lexicon map[string]string
	// RequireClarification stops planning when an ambiguous term has no
	// default interpretation.
	RequireClarification bool
	Logger               *zap.Logger
}

var (
	listTablesPattern = regexp.MustCompile(`\b(?:(?:what|which|list|show)\s+(?:me\s+)?(?:all\s+)?(?:the\s+)?tables|tables\s+(?:exist|are\s+there)|how\s+many\s+tables)\b`)
	describePattern   = regexp.MustCompile(`\b(?:schema|describe|structure|columns?\s+(?:in|of)|what\s+columns)\b`)

	bothPattern     = regexp.MustCompile(`(?i)\bboth\s+(.+?)\s+and\s+(.+?)[\s?.!]*$`)
	asWellAsPattern = regexp.MustCompile(`(?i)^(.+?)\s+as\s+well\s+as\s+(.+?)[\s?.!]*$`)
	andAlsoPattern  = regexp.MustCompile(`(?i)^(.+?),?\s+and\s+also\s+(.+?)[\s?.!]*$`)

	wordPattern = regexp.MustCompile(`[a-z0-9_]+`)
)

// Plan classifies the question and builds its plan.
func (d *Decomposer) Plan(ctx context.Context, question string, snap *schema.Snapshot) (*Plan, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if snap == nil {
		return nil, fmt.Errorf("cannot plan %q without a schema snapshot", question)
	}
	logger := d.logger()

	q := normalize(question)
	plan := &Plan{Question: question}

	if meta := metaAnswer(q, snap); meta != nil {
		plan.Kind = KindMeta
		plan.Meta = meta
		logger.Debug("meta question", zap.String("meta", string(meta.Kind)), zap.String("table", meta.Table))
		return plan, nil
	}

	var unresolved []string
	for _, term := range d.ambiguousTerms(q) {
		plan.Terms = append(plan.Terms, term)
		interpretation := d.lexicon()[term]
		if interpretation == "" {
			unresolved = append(unresolved, term)
			continue
		}
		plan.Assumptions = append(plan.Assumptions, interpretation)
	}
	if len(plan.Terms) > 0 {
		plan.Kind = KindAmbiguous
	}
	if len(unresolved) > 0 {
		if d.RequireClarification {
			plan.Clarification = clarificationFor(unresolved)
			logger.Debug("clarification required", zap.Strings("terms", unresolved))
			return plan, nil
		}
		for _, term := range unresolved {
			plan.Assumptions = append(plan.Assumptions, noDefaultAssumption(term))
		}
	}

	if first, second, ok := splitConditions(question); ok {
		if plan.Kind == "" {
			plan.Kind = KindMultiStep
		}
		plan.Steps = []Step{
			{
				ID:   "step1",
				Goal: fmt.Sprintf("Find the identifiers of the rows that match %q, for the question: %s", first, question),
			},
			{
				ID:        "step2",
				Goal:      fmt.Sprintf("Among the results of step1, keep those that also match %q, to answer: %s", second, question),
				DependsOn: []string{"step1"},
			},
		}
	} else {
		if plan.Kind == "" {
			plan.Kind = KindSimple
		}
		plan.Steps = []Step{{ID: "step1", Goal: question}}
	}

	facts, err := d.facts(ctx, q, snap)
	if err != nil {
		return nil, err
	}
	plan.Facts = facts

	logger.Debug("planned question",
		zap.String("kind", string(plan.Kind)),
		zap.Int("steps", len(plan.Steps)),
		zap.Strings("assumptions", plan.Assumptions),
		zap.Int("facts", len(plan.Facts)))
	return plan, nil
}

func (d *Decomposer) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Decomposer) lexicon() map[string]string {
	if d.Lexicon != nil {
		return d.Lexicon
	}
	return DefaultLexicon
}

// ambiguousTerms returns the lexicon terms in the question, in order of appearance.
func (d *Decomposer) ambiguousTerms(q string) []string {
	lex := d.lexicon()
	seen := map[string]bool{}
	var terms []string
	for _, w := range wordPattern.FindAllString(q, -1) {
		if _, ok := lex[w]; ok && !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

// facts fetches sample values of the text columns the question names.
func (d *Decomposer) facts(ctx context.Context, q string, snap *schema.Snapshot) ([]schema.Fact, error) {
	if d.Facts == nil {
		return nil, nil
	}

	var out []schema.Fact
	for _, table := range snap.Tables() {
		for _, column := range snap.TextColumns(table) {
			if len(out) >= MaxFactColumns {
				return out, nil
			}
			if !mentions(q, column) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			values, err := d.Facts.DistinctValues(ctx, table, column, MaxFactValues)
			if err != nil {
				// a missing fact only weakens the prompt
				d.logger().Warn("failed to fetch sample values",
					zap.String("table", table), zap.String("column", column), zap.Error(err))
				continue
			}
			if len(values) == 0 {
				continue
			}
			out = append(out, schema.Fact{Table: table, Column: column, Values: values})
		}
	}
	return out, nil
}

func metaAnswer(q string, snap *schema.Snapshot) *Meta {
	if listTablesPattern.MatchString(q) {
		tables := snap.Tables()
		var b strings.Builder
		fmt.Fprintf(&b, "Database contains %d tables:\n", len(tables))
		for i, t := range tables {
			if n, ok := snap.RowCount(t); ok {
				fmt.Fprintf(&b, "%d. %s (%d rows)\n", i+1, t, n)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", i+1, t)
			}
		}
		return &Meta{Kind: MetaListTables, Tables: tables, Text: b.String()}
	}

	if describePattern.MatchString(q) {
		table := mentionedTable(q, snap)
		if table == "" {
			return nil
		}
		text, _ := snap.Describe(table)
		return &Meta{Kind: MetaDescribeTable, Table: table, Text: text}
	}
	return nil
}

// mentionedTable returns the longest table name the question mentions.
func mentionedTable(q string, snap *schema.Snapshot) string {
	tables := snap.Tables()
	sort.SliceStable(tables, func(i, j int) bool { return len(tables[i]) > len(tables[j]) })
	for _, t := range tables {
		if mentions(q, t) {
			return t
		}
	}
	return ""
}

// mentions reports whether the normalized question names an identifier,
// either verbatim, split on case changes, or as a plural.
func mentions(q, identifier string) bool {
	padded := " " + q + " "
	for _, form := range identifierForms(identifier) {
		if strings.Contains(padded, " "+form+" ") || strings.Contains(padded, " "+form+"s ") {
			return true
		}
	}
	return false
}

func identifierForms(identifier string) []string {
	joined := strings.ToLower(identifier)
	split := splitWords(identifier)
	if split == joined {
		return []string{joined}
	}
	return []string{joined, split}
}

// splitWords turns InvoiceLine or invoice_line into "invoice line".
func splitWords(identifier string) string {
	var b strings.Builder
	runes := []rune(identifier)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
			continue
		case i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]):
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// normalize lowercases the question and reduces it to space-separated words.
func normalize(question string) string {
	return strings.Join(wordPattern.FindAllString(strings.ToLower(question), -1), " ")
}

// splitConditions finds two categorical conditions joined by a connective.
func splitConditions(question string) (string, string, bool) {
	for _, p := range []*regexp.Regexp{bothPattern, asWellAsPattern, andAlsoPattern} {
		m := p.FindStringSubmatch(question)
		if m == nil {
			continue
		}
		first, second := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if first != "" && second != "" {
			return first, second, true
		}
	}
	return "", "", false
}
