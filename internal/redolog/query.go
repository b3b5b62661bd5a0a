package redolog

import (
	"fmt"
	"strings"

	"github.com/nimbusdb/akdb/internal/relalg"
)

const (
	sepAttr = "::ATTR::"
	sepCond = "::COND::"
	sepItem = ","
)

// BuildQueryID constructs the canonical query identifier: source table
// name, projection attributes in order, and a canonical rendering of the
// predicate tokens, delimited by fixed separators. Two logically identical
// queries always render to the same string, which is what makes it usable
// as a cache key.
func BuildQueryID(table string, projection []string, predicate []relalg.Token) string {
	var b strings.Builder
	b.WriteString(table)
	b.WriteString(sepAttr)
	b.WriteString(strings.Join(projection, sepItem))
	b.WriteString(sepCond)
	b.WriteString(renderTokens(predicate))
	return b.String()
}

func renderTokens(tokens []relalg.Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		switch t.Class {
		case relalg.ClassAttributeRef:
			parts[i] = "A:" + t.Attribute
		case relalg.ClassLiteral:
			parts[i] = fmt.Sprintf("L:%d:%v", t.Type, t.Value)
		case relalg.ClassOperator:
			parts[i] = "O:" + t.Op
		}
	}
	return strings.Join(parts, sepItem)
}
