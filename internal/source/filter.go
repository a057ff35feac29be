package source

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// Filter is a simple comparison on one scene metadata property.
type Filter struct {
	Property string `json:"property"`
	Op       string `json:"op"`
	Value    any    `json:"value"`
}

// Eq matches scenes whose property equals v.
func Eq(prop string, v any) Filter { return Filter{Property: prop, Op: "==", Value: v} }

// Neq matches scenes whose property differs from v.
func Neq(prop string, v any) Filter { return Filter{Property: prop, Op: "!=", Value: v} }

// Lt matches scenes whose property is below v.
func Lt(prop string, v float64) Filter { return Filter{Property: prop, Op: "<", Value: v} }

// Lte matches scenes whose property is at most v.
func Lte(prop string, v float64) Filter { return Filter{Property: prop, Op: "<=", Value: v} }

// Gt matches scenes whose property is above v.
func Gt(prop string, v float64) Filter { return Filter{Property: prop, Op: ">", Value: v} }

// Gte matches scenes whose property is at least v.
func Gte(prop string, v float64) Filter { return Filter{Property: prop, Op: ">=", Value: v} }

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Property, f.Op, f.Value)
}

// Expression renders the filter as a CEL expression over the props map.
func (f Filter) Expression() (string, error) {
	if f.Property == "" {
		return "", errors.New("filter property is required")
	}
	switch f.Op {
	case "==", "!=", "<", "<=", ">", ">=":
	default:
		return "", fmt.Errorf("filter %s: unsupported operator %q", f.Property, f.Op)
	}
	lit, err := celLiteral(f.Value)
	if err != nil {
		return "", fmt.Errorf("filter %s: %w", f.Property, err)
	}
	return fmt.Sprintf("props[%s] %s %s", strconv.Quote(f.Property), f.Op, lit), nil
}

func celLiteral(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	n, ok := raster.NumericProperty(map[string]any{"v": v}, "v")
	if !ok {
		return "", fmt.Errorf("unsupported value %v (%T)", v, v)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "", fmt.Errorf("non-finite value %v", n)
	}
	s := strconv.FormatFloat(n, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s, nil
}

// Matcher evaluates a conjunction of filters against scene metadata.
type Matcher struct {
	exprs    []string
	programs []cel.Program
}

// CompileFilters builds a matcher. An empty filter list matches everything.
func CompileFilters(filters []Filter) (*Matcher, error) {
	m := &Matcher{}
	if len(filters) == 0 {
		return m, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("props", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create filter environment: %w", err)
	}
	for _, f := range filters {
		expr, err := f.Expression()
		if err != nil {
			return nil, err
		}
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program filter %q: %w", expr, err)
		}
		m.exprs = append(m.exprs, expr)
		m.programs = append(m.programs, prg)
	}
	return m, nil
}

// Match reports whether every filter holds. A missing property or a type
// mismatch counts as no match.
func (m *Matcher) Match(props map[string]any) bool {
	if len(m.programs) == 0 {
		return true
	}
	input := map[string]any{"props": normalize(props)}
	for _, prg := range m.programs {
		out, _, err := prg.Eval(input)
		if err != nil {
			return false
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			return false
		}
	}
	return true
}

// String lists the compiled expressions.
func (m *Matcher) String() string {
	return strings.Join(m.exprs, " && ")
}

// normalize widens numeric metadata to float64 so literals compare as doubles.
func normalize(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch v.(type) {
		case string, bool:
			out[k] = v
			continue
		}
		if n, ok := raster.NumericProperty(props, k); ok {
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}
