// Package fetchxml models the remote store's native query language: an
// XML document describing an attribute-filtered, paged entity read.
package fetchxml

import (
	"encoding/xml"
	"fmt"

	"github.com/veldt-labs/sqlbridge/types"
)

// Fetch is the root of a native query document
type Fetch struct {
	XMLName      xml.Name `xml:"fetch"`
	Top          int      `xml:"top,attr,omitempty"`
	Aggregate    bool     `xml:"aggregate,attr,omitempty"`
	Distinct     bool     `xml:"distinct,attr,omitempty"`
	Page         int      `xml:"page,attr,omitempty"`
	Count        int      `xml:"count,attr,omitempty"`
	PagingCookie string   `xml:"paging-cookie,attr,omitempty"`
	Entity       Entity   `xml:"entity"`
}

// Entity names the target entity and carries its projection, filter,
// ordering and joins
type Entity struct {
	Name          string       `xml:"name,attr"`
	AllAttributes *struct{}    `xml:"all-attributes,omitempty"`
	Attributes    []Attribute  `xml:"attribute"`
	Filter        *Filter      `xml:"filter,omitempty"`
	Orders        []Order      `xml:"order"`
	Links         []LinkEntity `xml:"link-entity"`
}

// Attribute is one projected attribute, optionally aggregated
type Attribute struct {
	Name      string `xml:"name,attr"`
	Alias     string `xml:"alias,attr,omitempty"`
	Aggregate string `xml:"aggregate,attr,omitempty"`
	GroupBy   bool   `xml:"groupby,attr,omitempty"`
	Distinct  bool   `xml:"distinct,attr,omitempty"`
}

// Filter combines conditions with and/or semantics; filters nest
type Filter struct {
	Type       string      `xml:"type,attr"`
	Conditions []Condition `xml:"condition"`
	Filters    []Filter    `xml:"filter"`
}

// Condition is one attribute comparison in a filter
type Condition struct {
	Attribute string   `xml:"attribute,attr"`
	Operator  string   `xml:"operator,attr"`
	Value     string   `xml:"value,attr,omitempty"`
	Values    []string `xml:"value,omitempty"`
}

// Order sorts the result by one attribute
type Order struct {
	Attribute  string `xml:"attribute,attr"`
	Descending bool   `xml:"descending,attr,omitempty"`
}

// LinkEntity joins a related entity on an attribute pair
type LinkEntity struct {
	Name       string       `xml:"name,attr"`
	From       string       `xml:"from,attr"`
	To         string       `xml:"to,attr"`
	LinkType   string       `xml:"link-type,attr,omitempty"`
	Alias      string       `xml:"alias,attr,omitempty"`
	Attributes []Attribute  `xml:"attribute"`
	Filter     *Filter      `xml:"filter,omitempty"`
	Links      []LinkEntity `xml:"link-entity"`
}

// Render serializes the query document
func (f *Fetch) Render() (string, error) {
	out, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render fetch xml: %w", err)
	}
	return string(out), nil
}

// Native condition operators
const (
	OpEqual        = "eq"
	OpNotEqual     = "ne"
	OpLess         = "lt"
	OpLessEqual    = "le"
	OpGreater      = "gt"
	OpGreaterEqual = "ge"
	OpLike         = "like"
	OpNotLike      = "not-like"
	OpNull         = "null"
	OpNotNull      = "not-null"
	OpIn           = "in"
	OpNotIn        = "not-in"
)

// SQL comparison operators mapped to their native equivalents
var sqlOperators = map[string]string{
	"=":  OpEqual,
	"<>": OpNotEqual,
	"!=": OpNotEqual,
	"<":  OpLess,
	"<=": OpLessEqual,
	">":  OpGreater,
	">=": OpGreaterEqual,
}

// TranslateOperator maps a SQL comparison operator to its native form.
// The second return reports whether a mapping exists.
func TranslateOperator(sqlOp string) (string, bool) {
	op, ok := sqlOperators[sqlOp]
	return op, ok
}

// SerializeValue renders a QueryValue for use in a condition. XML escaping
// happens at marshal time, so only the canonical text form matters here.
func SerializeValue(v types.QueryValue) string {
	return v.String()
}
