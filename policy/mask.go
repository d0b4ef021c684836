package policy

import (
	"fmt"
	"strings"

	"tripline/fco"
)

// Built-in property mask variables. They can be overridden by the policy.
var builtinVariables = map[string]string{
	"ReadOnly":   "+tpinugsdbmH",
	"Dynamic":    "+tpinugd",
	"Growing":    "+tpinugdl",
	"Device":     "+tpugsdr",
	"IgnoreAll":  "-" + fco.AllProps.String(),
	"IgnoreNone": "+" + fco.AllProps.Remove(fco.PropGrowing).String(),
}

const maxVariableDepth = 16

// ParseMask compiles a property mask such as "$(ReadOnly)-i+SH". Letters
// after '+' are added and letters after '-' removed; a mask starts in add
// mode. $(Name) applies the named variable in the current mode.
func ParseMask(expr string, vars map[string]string) (fco.Vector, error) {
	return parseMask(expr, vars, 0)
}

func parseMask(expr string, vars map[string]string, depth int) (fco.Vector, error) {
	if depth > maxVariableDepth {
		return 0, fmt.Errorf("property mask variables nest deeper than %d levels", maxVariableDepth)
	}
	var v fco.Vector
	adding := true
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
		case c == '+':
			adding = true
		case c == '-':
			adding = false
		case c == '$':
			if i+1 >= len(expr) || expr[i+1] != '(' {
				return 0, fmt.Errorf("property mask %q: expected '(' after '$'", expr)
			}
			end := strings.IndexByte(expr[i:], ')')
			if end < 0 {
				return 0, fmt.Errorf("property mask %q: unterminated variable", expr)
			}
			name := expr[i+2 : i+end]
			value, ok := lookupVariable(name, vars)
			if !ok {
				return 0, fmt.Errorf("property mask %q: undefined variable %q", expr, name)
			}
			sub, err := parseMask(value, vars, depth+1)
			if err != nil {
				return 0, err
			}
			if adding {
				v = v.Union(sub)
			} else {
				v = v.Minus(sub)
			}
			i += end
		default:
			p, ok := fco.PropByLetter(c)
			if !ok {
				return 0, fmt.Errorf("property mask %q: unknown property %q", expr, string(c))
			}
			if adding {
				v = v.Add(p)
			} else {
				v = v.Remove(p)
			}
		}
	}
	return v, nil
}

func lookupVariable(name string, vars map[string]string) (string, bool) {
	if value, ok := vars[name]; ok {
		return value, true
	}
	value, ok := builtinVariables[name]
	return value, ok
}
