package planner

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultLexicon maps underspecified qualitative terms to the interpretation
// used when the question does not pin them down. An empty interpretation
// means the term has no sensible default.
var DefaultLexicon = map[string]string{
	"recent":      "recent = last 30 days",
	"latest":      "latest = most recent by date, newest first",
	"newest":      "newest = most recent by date, newest first",
	"best":        "best = highest total sales",
	"worst":       "worst = lowest total sales",
	"top":         "top = ranked by total sales, first 10",
	"popular":     "popular = most units sold",
	"biggest":     "biggest = highest total amount",
	"largest":     "largest = highest total amount",
	"expensive":   "expensive = unit price above the average",
	"cheap":       "cheap = unit price below the average",
	"frequent":    "frequent = at least 5 purchases",
	"loyal":       "loyal = customers with at least 5 invoices",
	"active":      "active = activity in the last 90 days",
	"good":        "",
	"bad":         "",
	"important":   "",
	"interesting": "",
}

// noDefaultAssumption is recorded for a term without a default when the
// decomposer is allowed to proceed.
func noDefaultAssumption(term string) string {
	return fmt.Sprintf("%s = no fixed meaning; the query must state the interpretation it uses", term)
}

func clarificationFor(terms []string) string {
	if len(terms) == 1 {
		return fmt.Sprintf("What do you mean by %q? Please restate the question with a measurable criterion.", terms[0])
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = strconv.Quote(t)
	}
	return fmt.Sprintf("What do you mean by %s? Please restate the question with measurable criteria.", strings.Join(quoted, ", "))
}
