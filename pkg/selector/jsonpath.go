// Package selector builds grouping and keying functions that evaluate JSONPath expressions on
// unstructured items.
package selector

import (
	"errors"
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/l7mp/dgroup/pkg/grouper"
	"github.com/l7mp/dgroup/pkg/util"
)

// Unstructured is a decoded JSON/YAML object.
type Unstructured = map[string]any

var ErrNoValue = errors.New("JSONPath expression yields no value")

type ErrJSONPath = error

func NewJSONPathError(query string, err error) ErrJSONPath {
	return fmt.Errorf("JSONPath expression %q: %w", query, err)
}

// JSONPath returns a grouping function that evaluates query on the item. Non-string results
// are rendered as JSON, so "$.port" on {"port": 80} yields "80". A query that yields no value
// makes the selector fail.
func JSONPath(query string) (grouper.Selector[Unstructured, string], error) {
	exp, err := parse(query)
	if err != nil {
		return nil, err
	}
	return func(obj Unstructured) (string, error) {
		v, err := get(exp, obj)
		if err != nil {
			return "", NewJSONPathError(query, err)
		}
		return util.Stringify(v), nil
	}, nil
}

// Key returns a keying function with the same semantics as JSONPath.
func Key(query string) (func(Unstructured) (string, error), error) {
	return JSONPath(query)
}

func parse(query string) (jp.Expr, error) {
	// handle root ref "$." that is not handled by ojg/jp
	if query == "$." {
		query = "$"
	}
	exp, err := jp.ParseString(query)
	if err != nil {
		return nil, NewJSONPathError(query, err)
	}
	return exp, nil
}

func get(exp jp.Expr, obj Unstructured) (any, error) {
	values := exp.Get(obj)
	if len(values) == 0 || values[0] == nil {
		return nil, ErrNoValue
	}
	return values[0], nil
}
