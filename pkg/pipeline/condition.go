package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skillforge/engine/pkg/pathresolver"
	"github.com/skillforge/engine/pkg/skill"
)

// evaluate applies c against localCtx, per spec §4.7's operator table.
func evaluate(c *skill.Condition, localCtx map[string]any) (bool, error) {
	if c == nil {
		return true, nil
	}
	v := pathresolver.Get(localCtx, c.Field)
	if v == pathresolver.Missing {
		v = nil
	}

	switch c.Operator {
	case "equals":
		return equalStrict(v, c.Value), nil
	case "not_equals":
		return !equalStrict(v, c.Value), nil
	case "contains":
		return containsMatch(v, c.Value), nil
	case "not_contains":
		return !containsMatch(v, c.Value), nil
	case "in":
		return membership(c.Value, v), nil
	case "not_in":
		return !membership(c.Value, v), nil
	case "gt", "gte", "lt", "lte":
		return numericCompare(c.Operator, v, c.Value)
	case "is_empty":
		return isEmpty(v), nil
	case "is_not_empty":
		return !isEmpty(v), nil
	default:
		return false, fmt.Errorf("pipeline: unknown condition operator %q", c.Operator)
	}
}

func equalStrict(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b) && sameKind(a, b)
}

// sameKind guards equalStrict against "5" == 5 comparing equal by
// fmt.Sprint alone; equals is spec'd as strict.
func sameKind(a, b any) bool {
	_, aNum := toFloat(a)
	_, bNum := toFloat(b)
	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	if aIsStr != bIsStr {
		return false
	}
	if aIsStr && bIsStr {
		return aStr == bStr
	}
	return aNum == bNum || (!aNum && !bNum)
}

func containsMatch(v, target any) bool {
	needles := asSlice(target)
	switch tv := v.(type) {
	case string:
		lower := strings.ToLower(tv)
		for _, n := range needles {
			if strings.Contains(lower, strings.ToLower(fmt.Sprint(n))) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range tv {
			itemStr := strings.ToLower(fmt.Sprint(item))
			for _, n := range needles {
				if itemStr == strings.ToLower(fmt.Sprint(n)) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// asSlice normalizes target into a list of needles: a []any is used as-is,
// anything else is treated as a single-element needle list (contains'
// "if value is a list, ANY-match" implies a non-list value is one needle).
func asSlice(target any) []any {
	if list, ok := target.([]any); ok {
		return list
	}
	return []any{target}
}

func membership(list, v any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if fmt.Sprint(item) == fmt.Sprint(v) && sameKind(item, v) {
			return true
		}
	}
	return false
}

func numericCompare(op string, v, target any) (bool, error) {
	a, ok := toFloat(v)
	if !ok {
		return false, nil
	}
	b, ok := toFloat(target)
	if !ok {
		return false, nil
	}
	switch op {
	case "gt":
		return a > b, nil
	case "gte":
		return a >= b, nil
	case "lt":
		return a < b, nil
	case "lte":
		return a <= b, nil
	}
	return false, fmt.Errorf("pipeline: unreachable numeric operator %q", op)
}

func toFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case string:
		f, err := strconv.ParseFloat(tv, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == ""
	case []any:
		return len(tv) == 0
	case map[string]any:
		return len(tv) == 0
	case float64:
		return tv == 0
	case int:
		return tv == 0
	case bool:
		return tv == false
	default:
		return false
	}
}
