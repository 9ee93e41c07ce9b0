package execpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// Parse evaluates a Starlark rules file. Two builtins are available:
//
//	prefix_rule(pattern, decision="allow", justification="")
//	tool_rule(name, decision="allow", justification="")
//
// A pattern element is either a string or a list of alternative strings.
func Parse(filename, source string) (*Policy, error) {
	policy := NewPolicy()

	prefixRule := starlark.NewBuiltin("prefix_rule", func(
		_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var (
			pattern       *starlark.List
			decision      = "allow"
			justification string
		)
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"pattern", &pattern, "decision?", &decision, "justification?", &justification,
		); err != nil {
			return nil, err
		}
		d, err := ParseDecision(decision)
		if err != nil {
			return nil, err
		}
		tokens, err := toTokens(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		policy.AddPrefixRule(PrefixRule{Pattern: tokens, Decision: d, Justification: justification})
		return starlark.None, nil
	})

	toolRule := starlark.NewBuiltin("tool_rule", func(
		_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var (
			name          string
			decision      = "allow"
			justification string
		)
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"name", &name, "decision?", &decision, "justification?", &justification,
		); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("%s: name must not be empty", fn.Name())
		}
		d, err := ParseDecision(decision)
		if err != nil {
			return nil, err
		}
		policy.AddToolRule(ToolRule{Name: name, Decision: d, Justification: justification})
		return starlark.None, nil
	})

	thread := &starlark.Thread{Name: filename}
	predeclared := starlark.StringDict{"prefix_rule": prefixRule, "tool_rule": toolRule}
	if _, err := starlark.ExecFile(thread, filename, source, predeclared); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return policy, nil
}

func toTokens(list *starlark.List) ([]Token, error) {
	if list.Len() == 0 {
		return nil, fmt.Errorf("pattern must not be empty")
	}
	tokens := make([]Token, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		switch v := list.Index(i).(type) {
		case starlark.String:
			if v == "" {
				return nil, fmt.Errorf("pattern element %d is empty", i)
			}
			tokens = append(tokens, Token{string(v)})
		case *starlark.List:
			alts := make(Token, 0, v.Len())
			for j := 0; j < v.Len(); j++ {
				s, ok := v.Index(j).(starlark.String)
				if !ok || s == "" {
					return nil, fmt.Errorf("pattern element %d: alternatives must be non-empty strings", i)
				}
				alts = append(alts, string(s))
			}
			if len(alts) == 0 {
				return nil, fmt.Errorf("pattern element %d has no alternatives", i)
			}
			tokens = append(tokens, alts)
		default:
			return nil, fmt.Errorf("pattern element %d must be a string or list, got %s", i, v.Type())
		}
	}
	return tokens, nil
}

// LoadDir parses every *.rules file in dir, in name order. A missing
// directory yields an empty policy.
func LoadDir(dir string) (*Policy, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return NewPolicy(), nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".rules") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	merged := NewPolicy()
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		p, err := Parse(path, string(data))
		if err != nil {
			return nil, err
		}
		merged.Merge(p)
	}
	return merged, nil
}
