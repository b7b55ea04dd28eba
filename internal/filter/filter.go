// Package filter implements a predicate DSL over flows, used both by the
// UI's flow list and internally by the rule engine's matchers where
// convenient.
package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/syrahproxy/syrah/internal/flow"
)

// Operator is one of the comparison operators a SimpleFilter can apply.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpRegex       Operator = "regex"
	OpGreater     Operator = "gt"
	OpLess        Operator = "lt"
	OpGreaterEq   Operator = "gte"
	OpLessEq      Operator = "lte"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpInList      Operator = "in_list"
	OpNotInList   Operator = "not_in_list"
)

// Field selects what part of a flow a SimpleFilter reads.
type Field string

const (
	FieldURL           Field = "url"
	FieldMethod        Field = "method"
	FieldStatus        Field = "status"
	FieldHost          Field = "host"
	FieldContentType   Field = "content_type"
	FieldRequestBody   Field = "request_body"
	FieldResponseBody  Field = "response_body"
	FieldHeader        Field = "header" // requires HeaderName
	FieldTag           Field = "tag"
	FieldNotes         Field = "notes"
)

// Predicate is implemented by SimpleFilter, CombinedFilter, and QuickSearch.
type Predicate interface {
	Match(f *flow.Flow) bool
}

// SimpleFilter tests one field of a flow against value using Operator.
type SimpleFilter struct {
	Field      Field
	Operator   Operator
	Value      string
	Values     []string // for in_list/not_in_list
	HeaderName string   // for Field == FieldHeader
}

// Combinator joins CombinedFilter's children.
type Combinator string

const (
	And Combinator = "And"
	Or  Combinator = "Or"
)

// CombinedFilter composes child predicates with And/Or.
type CombinedFilter struct {
	Combinator Combinator
	Filters    []Predicate
}

// QuickSearch is a case-insensitive substring search across a fixed set of
// flow fields.
type QuickSearch struct {
	Text string
}

func (c CombinedFilter) Match(f *flow.Flow) bool {
	if len(c.Filters) == 0 {
		return true
	}
	switch c.Combinator {
	case Or:
		for _, p := range c.Filters {
			if p.Match(f) {
				return true
			}
		}
		return false
	default: // And
		for _, p := range c.Filters {
			if !p.Match(f) {
				return false
			}
		}
		return true
	}
}

func (q QuickSearch) Match(f *flow.Flow) bool {
	needle := strings.ToLower(q.Text)
	if needle == "" {
		return true
	}
	haystacks := []string{
		stringValue(f, FieldURL, ""),
		stringValue(f, FieldMethod, ""),
		stringValue(f, FieldStatus, ""),
		stringValue(f, FieldContentType, ""),
		strings.Join(f.Tags, " "),
		f.Notes,
		stringValue(f, FieldRequestBody, ""),
		stringValue(f, FieldResponseBody, ""),
	}
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

func (s SimpleFilter) Match(f *flow.Flow) bool {
	actual, present := fieldValue(f, s.Field, s.HeaderName)

	switch s.Operator {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	}
	if !present {
		return false
	}

	switch s.Operator {
	case OpEquals:
		return strings.EqualFold(actual, s.Value)
	case OpNotEquals:
		return !strings.EqualFold(actual, s.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(s.Value))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(actual), strings.ToLower(s.Value))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(s.Value))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(actual), strings.ToLower(s.Value))
	case OpRegex:
		re, err := regexp.Compile(s.Value)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case OpGreater, OpLess, OpGreaterEq, OpLessEq:
		return compareNumeric(actual, s.Value, s.Operator)
	case OpInList:
		return containsFold(s.Values, actual)
	case OpNotInList:
		return !containsFold(s.Values, actual)
	default:
		return false
	}
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// compareNumeric coerces both sides via float parse and returns false on
// non-numeric fields.
func compareNumeric(actual, want string, op Operator) bool {
	a, err1 := strconv.ParseFloat(actual, 64)
	b, err2 := strconv.ParseFloat(want, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	switch op {
	case OpGreater:
		return a > b
	case OpLess:
		return a < b
	case OpGreaterEq:
		return a >= b
	case OpLessEq:
		return a <= b
	default:
		return false
	}
}

func fieldValue(f *flow.Flow, field Field, headerName string) (value string, present bool) {
	switch field {
	case FieldHeader:
		if f.Request == nil || f.Request.Headers == nil {
			return "", false
		}
		return f.Request.Headers.Get(headerName)
	default:
		v := stringValue(f, field, "")
		return v, v != ""
	}
}

func stringValue(f *flow.Flow, field Field, fallback string) string {
	switch field {
	case FieldURL:
		if f.Request != nil {
			return f.Request.URL
		}
	case FieldMethod:
		if f.Request != nil {
			return string(f.Request.Method)
		}
	case FieldStatus:
		if f.Response != nil {
			return strconv.Itoa(f.Response.StatusCode)
		}
	case FieldHost:
		if f.Request != nil {
			return f.Request.Host
		}
	case FieldContentType:
		if f.Response != nil && f.Response.Headers != nil {
			v, _ := f.Response.Headers.Get("Content-Type")
			return v
		}
		if f.Request != nil && f.Request.Headers != nil {
			v, _ := f.Request.Headers.Get("Content-Type")
			return v
		}
	case FieldRequestBody:
		if f.Request != nil && f.Request.Body != nil {
			return f.Request.Body.Text
		}
	case FieldResponseBody:
		if f.Response != nil && f.Response.Body != nil {
			return f.Response.Body.Text
		}
	case FieldNotes:
		return f.Notes
	}
	return fallback
}
