// Package dedup collapses duplicate service-class predictions.
package dedup

import (
	"fmt"
	"strings"

	"servicelines-be/pkg/pipeline"
)

// KeyFunc derives the identity of a ServiceClass.
type KeyFunc func(pipeline.ServiceClass) string

// Strategy names accepted by ParseStrategy.
const (
	StrategyClass     = "class"
	StrategyClassType = "class_type"
	StrategyRecord    = "record"
)

// ByClass is the default key: the Class code alone.
func ByClass(c pipeline.ServiceClass) string { return c.Class }

func ByClassAndType(c pipeline.ServiceClass) string { return c.Class + "\x00" + c.Type }

// ByRecord treats only fully identical records as duplicates.
func ByRecord(c pipeline.ServiceClass) string {
	return strings.Join([]string{c.Category, c.Class, c.Group, c.Kltxt, c.Type}, "\x00")
}

// ParseStrategy resolves a configured strategy name; empty means "class".
func ParseStrategy(name string) (KeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyClass:
		return ByClass, nil
	case StrategyClassType:
		return ByClassAndType, nil
	case StrategyRecord:
		return ByRecord, nil
	}
	return nil, fmt.Errorf("unknown dedup strategy %q", name)
}

// Dedupe keeps the first occurrence of every key, preserving input order.
// A nil key func falls back to ByClass.
func Dedupe(classes []pipeline.ServiceClass, key KeyFunc) []pipeline.ServiceClass {
	if key == nil {
		key = ByClass
	}
	seen := make(map[string]struct{}, len(classes))
	out := make([]pipeline.ServiceClass, 0, len(classes))
	for _, c := range classes {
		k := key(c)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
