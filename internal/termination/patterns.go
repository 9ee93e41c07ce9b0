package termination

import (
	"regexp"
	"strings"
)

// TextClassifier decides whether a round's text belongs to a pattern family.
// toolNames lists the tools available to the model this round.
type TextClassifier func(text string, toolNames []string) bool

// incompleteIntentPatterns match text announcing work the model has not
// started yet ("I'll check that now", "Let me look at the file:").
var incompleteIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(i'll|i will|i'm going to|i am going to|let me|let's|i need to|i should)\s+(now\s+|first\s+|quickly\s+|also\s+)?(check|look|run|try|start|read|search|inspect|examine|create|write|update|fix|open|list|find|verify|test|execute|install|investigate|analy[sz]e|review|continue|proceed|begin|go ahead|modify|edit|add|remove|delete|explore|see)\b`),
	regexp.MustCompile(`(?i)\b(next|now|first),?\s+(i'll|i will|let me|i need to|we need to|i'm going to)\b`),
	regexp.MustCompile(`(?i)\b(working on it|one moment|give me a (moment|second)|stand by)\b`),
	regexp.MustCompile(`:\s*$`),
}

// mentionedToolPatterns match generic "use the X tool" phrasing. Explicit
// tool names are matched separately against the round's tool list.
var mentionedToolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(use|call|run|invoke|using|calling)\s+the\s+\w+\s+(tool|function|command)\b`),
	regexp.MustCompile(`(?i)<\s*(tool_call|function_call|invoke)\b`),
}

// summarizingPatterns match closing or summary phrasing.
var summarizingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(in summary|to summarize|to sum up|summary:|in conclusion)\b`),
	regexp.MustCompile(`(?i)\b(i have|i've)\s+(now\s+)?(completed|finished|done|implemented|fixed|created|updated)\b`),
	regexp.MustCompile(`(?i)\bthe task (is|has been)\s+(now\s+)?(complete|completed|done|finished)\b`),
	regexp.MustCompile(`(?i)\b(all done|everything is (done|in place|working)|successfully (completed|created|updated|fixed|implemented))\b`),
	regexp.MustCompile(`(?i)^\s*(here is|here's)\s+(a |the )?(summary|overview|recap)\b`),
	regexp.MustCompile(`(?i)\b(let me know if|feel free to ask|hope this helps)\b`),
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// IsIncompleteIntent reports whether text announces pending work.
func IsIncompleteIntent(text string, _ []string) bool {
	return matchesAny(incompleteIntentPatterns, text)
}

// MentionsTool reports whether text refers to a tool by name without
// calling it.
func MentionsTool(text string, toolNames []string) bool {
	lower := strings.ToLower(text)
	for _, name := range toolNames {
		if name == "" {
			continue
		}
		if containsWord(lower, strings.ToLower(name)) {
			return true
		}
	}
	return matchesAny(mentionedToolPatterns, text)
}

// IsSummarizing reports whether text reads like a closing summary.
func IsSummarizing(text string, _ []string) bool {
	return matchesAny(summarizingPatterns, text)
}

// containsWord reports whether word occurs in s bounded by non-identifier
// characters, so "shell" does not match "nutshell".
func containsWord(s, word string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if (i == 0 || !isIdentByte(s[i-1])) && (end == len(s) || !isIdentByte(s[end])) {
			return true
		}
		start = i + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '-' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// invocationMarkupPatterns match literal call markup a model sometimes
// writes into its text instead of emitting a real tool call.
var invocationMarkupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*(tool_call|tool_use|function_calls?|invoke)\b`),
	regexp.MustCompile("(?i)```\\s*(tool_call|tool_use|function_call)\\b"),
	regexp.MustCompile(`(?i)"type"\s*:\s*"(tool_use|function_call)"`),
}

// LooksLikeToolInvocation reports whether text contains tool call markup.
// A round with such text and no real calls is retried with a correction.
func LooksLikeToolInvocation(text string) bool {
	return matchesAny(invocationMarkupPatterns, text)
}
