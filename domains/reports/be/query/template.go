package query

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes placeholders in an admin-authored query
// template. The reserved {{schema}} placeholder expands to the validated
// tenant schema; every other placeholder is looked up in params and rendered
// as a SQL literal. Missing or nil parameters become NULL.
//
// The template text itself is trusted (TrustedSQL); only the substituted
// values are escaped.
func RenderTemplate(template TrustedSQL, tenantSchema string, params map[string]any) (string, error) {
	if err := persistence.AssertValidIdentifier(tenantSchema); err != nil {
		return "", err
	}

	var renderErr error
	rendered := placeholderPattern.ReplaceAllStringFunc(string(template), func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if name == "schema" {
			return tenantSchema
		}
		value, ok := params[name]
		if !ok || value == nil {
			return "NULL"
		}
		literal, err := renderParam(value)
		if err != nil && renderErr == nil {
			renderErr = fmt.Errorf("parameter %s: %w", name, err)
		}
		return literal
	})
	if renderErr != nil {
		return "", renderErr
	}
	return rendered, nil
}

func renderParam(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return quoteLiteral(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("non-finite number %v", v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return renderParam(float64(v))
	default:
		return "", fmt.Errorf("unsupported parameter type %T", value)
	}
}

// TemplatePlaceholders returns the distinct placeholder names used by a
// template, excluding the reserved schema placeholder, in first-seen order.
func TemplatePlaceholders(template TrustedSQL) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(string(template), -1) {
		name := m[1]
		if name == "schema" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
