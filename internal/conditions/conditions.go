// Package conditions evaluates stored webhook trigger conditions against
// an event payload. Evaluation is pure: it runs on every dispatch before
// any network I/O and must never error or block.
package conditions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vantagecrm/hookd/internal/models"
)

type compareFunc func(fieldVal, condVal interface{}) bool

// The operator set is closed. Unknown operators evaluate to false so a
// bad stored condition can only suppress a delivery, never crash one.
var operators = map[string]compareFunc{
	"equals":       opEquals,
	"not_equals":   opNotEquals,
	"contains":     opContains,
	"greater_than": opGreaterThan,
	"less_than":    opLessThan,
}

// ValidOperator reports whether the operator is in the closed set. Used
// at webhook create/update time so bad conditions never reach dispatch.
func ValidOperator(op string) bool {
	_, ok := operators[op]
	return ok
}

// Evaluate applies every condition against the payload and ANDs the
// results. An empty condition list is an unconditional trigger.
func Evaluate(conds []models.Condition, payload map[string]interface{}) bool {
	for _, c := range conds {
		op, ok := operators[c.Operator]
		if !ok {
			return false
		}
		fieldVal := Extract(c.Field, payload)
		if !op(fieldVal, c.Value) {
			return false
		}
	}
	return true
}

// Extract walks a dot path into the payload. A missing or non-map
// intermediate yields nil rather than an error.
func Extract(path string, payload map[string]interface{}) interface{} {
	parts := strings.Split(path, ".")
	var cur interface{} = payload
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

func opEquals(fieldVal, condVal interface{}) bool {
	if fieldVal == nil || condVal == nil {
		return fieldVal == condVal
	}
	// Numeric values arrive as mixed types (json float64 vs stored int);
	// compare numerically when both sides coerce.
	if a, aok := toFloat(fieldVal); aok {
		if b, bok := toFloat(condVal); bok {
			return a == b
		}
	}
	return stringify(fieldVal) == stringify(condVal)
}

func opNotEquals(fieldVal, condVal interface{}) bool {
	return !opEquals(fieldVal, condVal)
}

func opContains(fieldVal, condVal interface{}) bool {
	if fieldVal == nil {
		return false
	}
	return strings.Contains(stringify(fieldVal), stringify(condVal))
}

func opGreaterThan(fieldVal, condVal interface{}) bool {
	a, aok := toFloat(fieldVal)
	b, bok := toFloat(condVal)
	return aok && bok && a > b
}

func opLessThan(fieldVal, condVal interface{}) bool {
	a, aok := toFloat(fieldVal)
	b, bok := toFloat(condVal)
	return aok && bok && a < b
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
