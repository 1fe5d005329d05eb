package sqlvalidation

import "strings"

type tokenKind int

const (
	tokenWord      tokenKind = iota // keyword or bare identifier
	tokenQuoted                     // "identifier", `identifier` or [identifier]
	tokenString                     // 'literal', E'literal' or $tag$literal$tag$
	tokenNumber                     // numeric literal
	tokenSymbol                     // operator or punctuation
	tokenSemicolon                  // statement terminator
)

// token is one lexical unit of the input. Comments never produce tokens.
type token struct {
	kind  tokenKind
	text  string
	start int // byte offset in the input
	end   int
	depth int // parenthesis depth at the token; an opening paren carries the outer depth
}

func (t token) is(word string) bool {
	return t.kind == tokenWord && strings.EqualFold(t.text, word)
}

func (t token) isSymbol(s string) bool {
	return t.kind == tokenSymbol && t.text == s
}

// statement is one ;-separated statement with its comments removed.
type statement struct {
	tokens  []token
	text    string
	offsets []int // offset of each token within text
}

// tokenize scans SQL into tokens. It understands single-quoted strings,
// quoted identifiers, dollar-quoted strings, -- and /* */ comments. An
// unterminated quote or comment runs to the end of the input.
func tokenize(src string) []token {
	var tokens []token
	depth := 0
	n := len(src)

	emit := func(kind tokenKind, start, end int) {
		tokens = append(tokens, token{kind: kind, text: src[start:end], start: start, end: end, depth: depth})
	}

	for i := 0; i < n; {
		c := src[i]
		switch {
		case isSpace(c):
			i++

		case c == '-' && i+1 < n && src[i+1] == '-':
			for i < n && src[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += 2 + end + 2
			}

		case c == '\'':
			j := scanQuoted(src, i, '\'', false)
			emit(tokenString, i, j)
			i = j

		case (c == 'E' || c == 'e') && i+1 < n && src[i+1] == '\'':
			j := scanQuoted(src, i+1, '\'', true)
			emit(tokenString, i, j)
			i = j

		case c == '"' || c == '`':
			j := scanQuoted(src, i, c, false)
			emit(tokenQuoted, i, j)
			i = j

		case c == '[':
			j := strings.IndexByte(src[i:], ']')
			if j < 0 {
				j = n
			} else {
				j = i + j + 1
			}
			emit(tokenQuoted, i, j)
			i = j

		case c == '$' && dollarTag(src[i:]) != "":
			tag := dollarTag(src[i:])
			j := strings.Index(src[i+len(tag):], tag)
			if j < 0 {
				j = n
			} else {
				j = i + len(tag) + j + len(tag)
			}
			emit(tokenString, i, j)
			i = j

		case isWordStart(c):
			j := i + 1
			for j < n && isWordChar(src[j]) {
				j++
			}
			emit(tokenWord, i, j)
			i = j

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(src[i+1])):
			j := scanNumber(src, i)
			emit(tokenNumber, i, j)
			i = j

		case c == '(':
			emit(tokenSymbol, i, i+1)
			depth++
			i++

		case c == ')':
			if depth > 0 {
				depth--
			}
			emit(tokenSymbol, i, i+1)
			i++

		case c == ';':
			emit(tokenSemicolon, i, i+1)
			depth = 0
			i++

		default:
			emit(tokenSymbol, i, i+1)
			i++
		}
	}

	return tokens
}

// splitStatements groups tokens into statements, dropping empty ones. The
// statement text keeps the original spacing between tokens; a gap that held a
// comment becomes a single space.
func splitStatements(src string, tokens []token) []statement {
	var statements []statement
	var current []token

	flush := func() {
		if len(current) == 0 {
			return
		}
		var b strings.Builder
		offsets := make([]int, len(current))
		for k, tok := range current {
			if k > 0 {
				gap := src[current[k-1].end:tok.start]
				if strings.TrimSpace(gap) == "" {
					b.WriteString(gap)
				} else {
					b.WriteByte(' ')
				}
			}
			offsets[k] = b.Len()
			b.WriteString(tok.text)
		}
		statements = append(statements, statement{tokens: current, text: b.String(), offsets: offsets})
		current = nil
	}

	for _, tok := range tokens {
		if tok.kind == tokenSemicolon {
			flush()
			continue
		}
		current = append(current, tok)
	}
	flush()

	return statements
}

func scanQuoted(src string, i int, quote byte, backslash bool) int {
	j := i + 1
	for j < len(src) {
		switch {
		case backslash && src[j] == '\\':
			j += 2
			continue
		case src[j] == quote:
			// A doubled quote is an escaped quote
			if j+1 < len(src) && src[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(src)
}

// dollarTag returns the opening $tag$ of a dollar-quoted string, or "" when s
// does not start with one ($1 parameters are not tags).
func dollarTag(s string) string {
	if len(s) < 2 || s[0] != '$' {
		return ""
	}
	for j := 1; j < len(s); j++ {
		switch {
		case s[j] == '$':
			return s[:j+1]
		case isDigit(s[j]) && j == 1:
			return ""
		case !isWordChar(s[j]) || s[j] == '$':
			return ""
		}
	}
	return ""
}

func scanNumber(src string, i int) int {
	j := i
	for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
		j++
	}
	if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
		k := j + 1
		if k < len(src) && (src[k] == '+' || src[k] == '-') {
			k++
		}
		if k < len(src) && isDigit(src[k]) {
			j = k
			for j < len(src) && isDigit(src[j]) {
				j++
			}
		}
	}
	return j
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordChar(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '$'
}

// position converts a byte offset into a 1-based line and column.
func position(content string, offset int) (int, int) {
	if offset < 0 || offset >= len(content) {
		return 1, 1
	}

	line, col := 1, 1
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	return line, col
}
