package relay

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/flare/pkg/event"
)

// Filter wraps a compiled CEL program evaluated once per event. When the
// expression is empty the filter is disabled and matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. Variables available to expressions: name (string),
// value (dyn), metadata (dyn), user_id (string), ts_ms (int), now_ms (int).
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("value", cel.DynType),
		cel.Variable("metadata", cel.DynType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against ev. Disabled filters match
// everything; evaluation errors drop the event.
func (f Filter) Match(ev event.Event) bool {
	if !f.enabled {
		return true
	}
	md := ev.Metadata
	if md == nil {
		md = map[string]interface{}{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"name":     ev.Name,
		"value":    ev.Value,
		"metadata": md,
		"user_id":  ev.User.Key(),
		"ts_ms":    ev.Time,
		"now_ms":   time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
