package remotestore

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// FilterOp mirrors the wire-level filter operators the datastore
// understands. The Remote Store never evaluates a filter: it only carries
// Query values to and from the wire, compiling them purely to reject
// malformed predicates before they are sent.
type FilterOp string

const (
	OpEq       FilterOp = "=="
	OpNe       FilterOp = "!="
	OpGt       FilterOp = ">"
	OpGte      FilterOp = ">="
	OpLt       FilterOp = "<"
	OpLte      FilterOp = "<="
	OpIn       FilterOp = "in"
	OpContains FilterOp = "contains"
)

func (op FilterOp) isValid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains:
		return true
	}
	return false
}

// Filter is a single predicate over one field.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

// Query is the predicate carried by a QueryData. Evaluating it against a
// document is the sync engine's job; the Remote Store only validates it is
// well-formed before sending it over the wire.
type Query struct {
	Collection string
	Filters    []Filter
}

var filterEnv = mustNewFilterEnv()

func mustNewFilterEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("remotestore: building CEL filter environment: %v", err))
	}
	return env
}

// ValidateFilters compiles q's filters into a CEL program purely to reject
// syntactically malformed predicates before the target is sent over the
// wire. The compiled program is discarded; this package never evaluates it.
func ValidateFilters(q Query) error {
	if len(q.Filters) == 0 {
		return nil
	}
	exprs := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		expr, err := filterToExpression(f)
		if err != nil {
			return fmt.Errorf("remotestore: filter on %q: %w", f.Field, err)
		}
		exprs = append(exprs, expr)
	}
	full := strings.Join(exprs, " && ")
	ast, issues := filterEnv.Compile(full)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("remotestore: compiling filter expression: %w", issues.Err())
	}
	if _, err := filterEnv.Program(ast); err != nil {
		return fmt.Errorf("remotestore: building filter program: %w", err)
	}
	return nil
}

func filterToExpression(f Filter) (string, error) {
	if f.Field == "" {
		return "", fmt.Errorf("empty field")
	}
	if !f.Op.isValid() {
		return "", fmt.Errorf("unsupported operator: %s", f.Op)
	}
	valStr, err := formatFilterValue(f.Value)
	if err != nil {
		return "", err
	}

	field := "doc"
	for _, p := range strings.Split(f.Field, ".") {
		field += fmt.Sprintf("['%s']", p)
	}

	switch f.Op {
	case OpEq:
		return fmt.Sprintf("%s == %s", field, valStr), nil
	case OpNe:
		return fmt.Sprintf("%s != %s", field, valStr), nil
	case OpGt:
		return fmt.Sprintf("%s > %s", field, valStr), nil
	case OpGte:
		return fmt.Sprintf("%s >= %s", field, valStr), nil
	case OpLt:
		return fmt.Sprintf("%s < %s", field, valStr), nil
	case OpLte:
		return fmt.Sprintf("%s <= %s", field, valStr), nil
	case OpIn:
		return fmt.Sprintf("%s in %s", field, valStr), nil
	case OpContains:
		return fmt.Sprintf("%s in %s", valStr, field), nil
	default:
		return "", fmt.Errorf("unsupported operator: %s", f.Op)
	}
}

func formatFilterValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(val, "'", "\\'")), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int32:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float32:
		return fmt.Sprintf("%v", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := formatFilterValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return fmt.Sprintf("[%s]", strings.Join(parts, ", ")), nil
	default:
		return "", fmt.Errorf("unsupported value type: %T", v)
	}
}
