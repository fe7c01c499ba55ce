package util

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range is an inclusive [from, to] pair written as "from-to" or "n".
type Range[T Integer] [2]T

func (r *Range[T]) Valid() bool {
	return r[1] >= r[0]
}

func (r *Range[T]) Resolve(s string) error {
	from, to, found := strings.Cut(strings.TrimSpace(s), "-")
	i64, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid range %q: %w", s, err)
	}
	r[0] = T(i64)
	if !found {
		r[1] = r[0]
		return nil
	}
	if i64, err = strconv.ParseInt(to, 10, 64); err != nil {
		return fmt.Errorf("invalid range %q: %w", s, err)
	}
	r[1] = T(i64)
	if !r.Valid() {
		return fmt.Errorf("invalid range %q: end before start", s)
	}
	return nil
}

func (r *Range[T]) UnmarshalYAML(value *yaml.Node) error {
	return r.Resolve(value.Value)
}
