// Package relalg implements the relational operators: the postfix
// expression evaluator used by selection and theta-join, and the
// operators (selection, projection, sort-materialize, set operators,
// natural/theta join, cartesian product, aggregation) that consume source
// segments and produce destination segments via internal/record.
package relalg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// TokenClass distinguishes the three postfix token kinds.
type TokenClass int

const (
	ClassAttributeRef TokenClass = iota
	ClassLiteral
	ClassOperator
)

// Token is one element of a postfix expression stream.
type Token struct {
	Class     TokenClass
	Attribute string      // set when Class == ClassAttributeRef
	Type      block.Type  // set when Class == ClassLiteral
	Value     any         // set when Class == ClassLiteral
	Op        string      // set when Class == ClassOperator
}

// AttrRef builds an AttributeRef token.
func AttrRef(name string) Token { return Token{Class: ClassAttributeRef, Attribute: name} }

// Lit builds a Literal token.
func Lit(t block.Type, v any) Token { return Token{Class: ClassLiteral, Type: t, Value: v} }

// Op builds an Operator token.
func Op(op string) Token { return Token{Class: ClassOperator, Op: op} }

var comparisonOps = map[string]bool{"=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true}
var logicalOps = map[string]bool{"AND": true, "OR": true}
var anyAllOps = map[string]bool{
	"=ANY": true, ">ANY": true, "<ANY": true, ">=ANY": true, "<=ANY": true, "!=ANY": true,
	">ALL": true, "<ALL": true, ">=ALL": true, "<=ALL": true, "=ALL": true, "!=ALL": true,
}
var patternOps = map[string]bool{
	"LIKE": true, "NOT LIKE": true, "ILIKE": true, "NOT ILIKE": true,
	"SIMILAR TO": true, "~": true, "!~": true, "~*": true,
}
var arithmeticOps = map[string]bool{"+": true, "-": true, "*": true, "/": true, "%": true, "^": true}

// Evaluator walks a postfix token stream against one row, producing either
// a truth value (predicate evaluation) or an arithmetic value.
type Evaluator struct {
	header []block.AttributeDescriptor
	index  map[string]int
}

// NewEvaluator binds an Evaluator to the schema its tokens' AttributeRefs
// resolve against.
func NewEvaluator(header []block.AttributeDescriptor) *Evaluator {
	idx := make(map[string]int, len(header))
	for i, a := range header {
		idx[a.Name] = i
	}
	return &Evaluator{header: header, index: idx}
}

// stackVal is a value on the evaluator's value/result stack: either a raw
// operand (numeric/string/bool) or a comparison's truth value.
type stackVal struct {
	b    bool
	isB  bool
	v    any
}

// Eval runs tokens (a postfix expression) against row and returns the final
// boolean result. Each operator pops the right arity, computes, and pushes
// the resulting truth value or arithmetic value back onto the stack.
func (e *Evaluator) Eval(tokens []Token, row []any) (bool, error) {
	var stack []stackVal
	pop := func() (stackVal, error) {
		if len(stack) == 0 {
			return stackVal{}, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "expression stack underflow").WithField("expression")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}
	push := func(v stackVal) { stack = append(stack, v) }

	for _, t := range tokens {
		switch t.Class {
		case ClassAttributeRef:
			i, ok := e.index[t.Attribute]
			if !ok {
				return false, errors.NewSchemaViolationError("expression", t.Attribute, "unknown attribute referenced in expression")
			}
			push(stackVal{v: row[i]})
		case ClassLiteral:
			push(stackVal{v: t.Value})
		case ClassOperator:
			result, err := e.applyOp(t.Op, &stack, pop, push)
			if err != nil {
				return false, err
			}
			if result != nil {
				push(*result)
			}
		default:
			return false, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "unknown token class").WithField("token")
		}
	}

	if len(stack) != 1 {
		return false, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "expression did not reduce to a single result").WithField("expression")
	}
	final := stack[0]
	if final.isB {
		return final.b, nil
	}
	b, ok := final.v.(bool)
	if !ok {
		return false, errors.NewSchemaViolationError("expression", "", "expression did not evaluate to a boolean result")
	}
	return b, nil
}

func (e *Evaluator) applyOp(op string, stack *[]stackVal, pop func() (stackVal, error), push func(stackVal)) (*stackVal, error) {
	switch {
	case comparisonOps[op]:
		right, err := pop()
		if err != nil {
			return nil, err
		}
		left, err := pop()
		if err != nil {
			return nil, err
		}
		ok, err := compare(left.v, right.v, op)
		if err != nil {
			return nil, err
		}
		return &stackVal{b: ok, isB: true}, nil

	case logicalOps[op]:
		right, err := pop()
		if err != nil {
			return nil, err
		}
		left, err := pop()
		if err != nil {
			return nil, err
		}
		var result bool
		switch op {
		case "AND":
			result = left.b && right.b
		case "OR":
			result = left.b || right.b
		}
		return &stackVal{b: result, isB: true}, nil

	case anyAllOps[op]:
		list, err := pop()
		if err != nil {
			return nil, err
		}
		left, err := pop()
		if err != nil {
			return nil, err
		}
		ok, err := evalAnyAll(left.v, list.v, op)
		if err != nil {
			return nil, err
		}
		return &stackVal{b: ok, isB: true}, nil

	case op == "BETWEEN":
		hi, err := pop()
		if err != nil {
			return nil, err
		}
		lo, err := pop()
		if err != nil {
			return nil, err
		}
		v, err := pop()
		if err != nil {
			return nil, err
		}
		okLo, err := compare(v.v, lo.v, ">=")
		if err != nil {
			return nil, err
		}
		okHi, err := compare(v.v, hi.v, "<=")
		if err != nil {
			return nil, err
		}
		return &stackVal{b: okLo && okHi, isB: true}, nil

	case patternOps[op]:
		pattern, err := pop()
		if err != nil {
			return nil, err
		}
		left, err := pop()
		if err != nil {
			return nil, err
		}
		ok, err := matchPattern(left.v, pattern.v, op)
		if err != nil {
			return nil, err
		}
		return &stackVal{b: ok, isB: true}, nil

	case arithmeticOps[op]:
		right, err := pop()
		if err != nil {
			return nil, err
		}
		left, err := pop()
		if err != nil {
			return nil, err
		}
		v, err := arithmetic(left.v, right.v, op)
		if err != nil {
			return nil, err
		}
		return &stackVal{v: v}, nil

	default:
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, fmt.Sprintf("unsupported operator %q", op)).WithField("operator")
	}
}

// compare implements the closed type-coercion rule: operands of a binary
// operator must agree in kind, with no implicit cross-kind coercion.
func compare(a, b any, op string) (bool, error) {
	if af, aok := asNumber(a); aok {
		bf, bok := asNumber(b)
		if !bok {
			return false, errors.NewSchemaViolationError("comparison", "", "operand kind mismatch: numeric vs non-numeric")
		}
		switch op {
		case "=":
			return af == bf, nil
		case "<>":
			return af != bf, nil
		case "<":
			return af < bf, nil
		case ">":
			return af > bf, nil
		case "<=":
			return af <= bf, nil
		case ">=":
			return af >= bf, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "=":
			return as == bs, nil
		case "<>":
			return as != bs, nil
		case "<":
			return as < bs, nil
		case ">":
			return as > bs, nil
		case "<=":
			return as <= bs, nil
		case ">=":
			return as >= bs, nil
		}
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		switch op {
		case "=":
			return ab == bb, nil
		case "<>":
			return ab != bb, nil
		}
	}
	return false, errors.NewSchemaViolationError("comparison", "", "operand kind mismatch")
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// evalAnyAll implements the set operators against a comma-separated literal
// list, collapsing SQL three-valued logic to two values (nulls are false).
func evalAnyAll(v any, list any, op string) (bool, error) {
	if v == nil {
		return false, nil
	}
	raw, _ := list.(string)
	items := strings.Split(raw, ",")

	base := strings.TrimSuffix(strings.TrimSuffix(op, "ANY"), "ALL")
	wantAny := strings.HasSuffix(op, "ANY")

	var matched, total int
	for _, item := range items {
		total++
		lit := parseListItem(strings.TrimSpace(item), v)
		ok, err := compare(v, lit, normalizeAnyAllOp(base))
		if err != nil {
			return false, err
		}
		if ok {
			matched++
		}
	}
	if wantAny {
		return matched > 0, nil
	}
	return total > 0 && matched == total, nil
}

func normalizeAnyAllOp(base string) string {
	if base == "!=" {
		return "<>"
	}
	return base
}

func parseListItem(s string, like any) any {
	switch like.(type) {
	case int64:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case float64:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// matchPattern implements the LIKE/ILIKE/SIMILAR TO/POSIX-regex family.
func matchPattern(v any, pattern any, op string) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, errors.NewSchemaViolationError("pattern match", "", "LHS of a pattern operator must be a string")
	}
	p, ok := pattern.(string)
	if !ok {
		return false, errors.NewSchemaViolationError("pattern match", "", "RHS of a pattern operator must be a string literal")
	}

	switch op {
	case "LIKE", "NOT LIKE":
		re, err := regexp.Compile(likeToRegexp(p, false))
		if err != nil {
			return false, errors.NewSchemaViolationError("pattern match", "", "invalid LIKE pattern")
		}
		ok := re.MatchString(s)
		if op == "NOT LIKE" {
			ok = !ok
		}
		return ok, nil
	case "ILIKE", "NOT ILIKE":
		re, err := regexp.Compile(likeToRegexp(p, true))
		if err != nil {
			return false, errors.NewSchemaViolationError("pattern match", "", "invalid ILIKE pattern")
		}
		ok := re.MatchString(s)
		if op == "NOT ILIKE" {
			ok = !ok
		}
		return ok, nil
	case "SIMILAR TO":
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return false, errors.NewSchemaViolationError("pattern match", "", "invalid SIMILAR TO pattern")
		}
		return re.MatchString(s), nil
	case "~", "!~":
		re, err := regexp.Compile(p)
		if err != nil {
			return false, errors.NewSchemaViolationError("pattern match", "", "invalid regular expression")
		}
		ok := re.MatchString(s)
		if op == "!~" {
			ok = !ok
		}
		return ok, nil
	case "~*":
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return false, errors.NewSchemaViolationError("pattern match", "", "invalid regular expression")
		}
		return re.MatchString(s), nil
	}
	return false, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, fmt.Sprintf("unsupported pattern operator %q", op)).WithField("operator")
}

// likeToRegexp translates SQL wildcards (% and _) into an anchored regexp:
// % becomes ".*", _ becomes ".", and the whole pattern is anchored with
// ^…$ before matching.
func likeToRegexp(p string, insensitive bool) string {
	var b strings.Builder
	b.WriteString("^")
	if insensitive {
		b.WriteString("(?i)")
	}
	for _, r := range p {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// arithmetic implements +, -, *, /, %, ^ for integer and float types.
// Division or modulo by zero yields zero rather than an error.
func arithmetic(a, b any, op string) (any, error) {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if !aok || !bok {
		return nil, errors.NewSchemaViolationError("arithmetic", "", "operand kind mismatch: both sides must be numeric")
	}

	_, aIsInt := a.(int64)
	_, bIsInt := b.(int64)
	bothInt := aIsInt && bIsInt

	switch op {
	case "+":
		if bothInt {
			return a.(int64) + b.(int64), nil
		}
		return af + bf, nil
	case "-":
		if bothInt {
			return a.(int64) - b.(int64), nil
		}
		return af - bf, nil
	case "*":
		if bothInt {
			return a.(int64) * b.(int64), nil
		}
		return af * bf, nil
	case "/":
		if bf == 0 {
			if bothInt {
				return int64(0), nil
			}
			return 0.0, nil
		}
		if bothInt {
			return a.(int64) / b.(int64), nil
		}
		return af / bf, nil
	case "%":
		if bf == 0 {
			if bothInt {
				return int64(0), nil
			}
			return 0.0, nil
		}
		if bothInt {
			return a.(int64) % b.(int64), nil
		}
		return float64(int64(af) % int64(bf)), nil
	case "^":
		result := 1.0
		for i := 0; i < int(bf); i++ {
			result *= af
		}
		if bothInt {
			return int64(result), nil
		}
		return result, nil
	}
	return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, fmt.Sprintf("unsupported arithmetic operator %q", op)).WithField("operator")
}
