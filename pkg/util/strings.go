// Package util holds small helpers shared across packages.
package util

import (
	"cmp"
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/util/json"
)

// Map applies f to every element of s: (a -> b) -> [a] -> [b].
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Stringify renders v as JSON, or as a Go value if v cannot be marshaled. Strings are returned
// as is.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// SortByString sorts s in place by the Stringify form of the key extracted from each element.
func SortByString[T, K any](s []T, key func(T) K) {
	slices.SortStableFunc(s, func(a, b T) int {
		return cmp.Compare(Stringify(key(a)), Stringify(key(b)))
	})
}
