// Package command_safety classifies shell scripts as known-safe (read only),
// dangerous (destructive), or unknown.
package command_safety

import "strings"

// SplitPlainCommands splits a bash script into its simple commands. It only
// accepts plain words joined by &&, ||, ; and |. Anything it cannot reason
// about (expansions, substitutions, redirections, subshells, background jobs)
// makes it return ok=false.
func SplitPlainCommands(script string) (commands [][]string, ok bool) {
	t := tokenizer{src: script}
	var current []string
	lastOp := ""

	for {
		tok, kind, bad := t.next()
		if bad {
			return nil, false
		}
		switch kind {
		case tokEOF:
			if len(current) > 0 {
				commands = append(commands, current)
			} else if lastOp != "" && !isSeparator(lastOp) {
				return nil, false
			}
			return commands, len(commands) > 0
		case tokOperator:
			if len(current) == 0 {
				// blank lines and stray separators are harmless
				if isSeparator(tok) && (lastOp == "" || isSeparator(lastOp)) {
					continue
				}
				return nil, false
			}
			commands = append(commands, current)
			current = nil
			lastOp = tok
		case tokWord:
			if len(current) == 0 && isAssignment(tok) {
				return nil, false
			}
			current = append(current, tok)
		}
	}
}

func isSeparator(op string) bool {
	return op == ";" || op == "\n"
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokOperator
)

type tokenizer struct {
	src string
	pos int
}

func (t *tokenizer) next() (string, tokenKind, bool) {
	for t.pos < len(t.src) && (t.src[t.pos] == ' ' || t.src[t.pos] == '\t') {
		t.pos++
	}
	if t.pos >= len(t.src) {
		return "", tokEOF, false
	}

	switch c := t.src[t.pos]; c {
	case '\n', ';':
		t.pos++
		return string(c), tokOperator, false
	case '&', '|':
		if t.pos+1 < len(t.src) && t.src[t.pos+1] == c {
			t.pos += 2
			return string([]byte{c, c}), tokOperator, false
		}
		if c == '|' {
			t.pos++
			return "|", tokOperator, false
		}
		// lone & backgrounds a job
		return "", tokEOF, true
	case '(', ')', '<', '>', '`', '{', '}':
		return "", tokEOF, true
	}

	var word strings.Builder
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch c {
		case ' ', '\t', '\n', ';', '&', '|', '(', ')', '<', '>', '`':
			return word.String(), tokWord, false
		case '$', '*', '?', '[', '~', '\\':
			return "", tokEOF, true
		case '\'':
			end := strings.IndexByte(t.src[t.pos+1:], '\'')
			if end < 0 {
				return "", tokEOF, true
			}
			word.WriteString(t.src[t.pos+1 : t.pos+1+end])
			t.pos += end + 2
		case '"':
			end := strings.IndexByte(t.src[t.pos+1:], '"')
			if end < 0 {
				return "", tokEOF, true
			}
			body := t.src[t.pos+1 : t.pos+1+end]
			if strings.ContainsAny(body, "$`\\") {
				return "", tokEOF, true
			}
			word.WriteString(body)
			t.pos += end + 2
		default:
			word.WriteByte(c)
			t.pos++
		}
	}
	return word.String(), tokWord, false
}

func isAssignment(word string) bool {
	eq := strings.IndexByte(word, '=')
	if eq <= 0 {
		return false
	}
	for i := 0; i < eq; i++ {
		c := word[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
