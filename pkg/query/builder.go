// Package query assembles SELECT statements with named parameters from a
// declarative Criteria.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidCriteria is returned for criteria that cannot be turned into a
// statement, such as conflicting parameter names or a negative limit.
var ErrInvalidCriteria = errors.New("invalid query criteria")

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Filter is a single condition. A filter with a non-empty Value is emitted
// as "Column = :param" with Value bound to param. A filter whose Value is
// nil or "" is emitted verbatim, which allows boolean expressions such as
// precomputed range conditions to be used as filters.
//
// A Prefix filter matches rows whose Column starts with the string Value,
// compared case-sensitively and without wildcards. An empty prefix matches
// everything.
type Filter struct {
	Column string
	Value  any
	Prefix bool
}

// Criteria describes a SELECT against a single table.
//
// Select, Where, GroupBy and OrderBy are inserted verbatim and must not be
// derived from untrusted input without escaping. Because statements use
// ":name" placeholders, a literal colon inside these fragments must be
// written as "::".
type Criteria struct {
	// Select overrides the default "*" projection.
	Select string
	// Filters are ANDed in order.
	Filters []Filter
	// Where is ANDed after the filters.
	Where   string
	GroupBy string
	// OrderBy terms are always sorted descending and must not carry their
	// own direction.
	OrderBy []string
	Limit   int
	Offset  int
}

// Eq appends an equality filter and returns the criteria for chaining.
func (c Criteria) Eq(column string, value any) Criteria {
	c.Filters = append(append([]Filter(nil), c.Filters...), Filter{
		Column: column,
		Value:  value,
	})

	return c
}

// HasPrefix appends a prefix filter and returns the criteria for chaining.
func (c Criteria) HasPrefix(column, prefix string) Criteria {
	c.Filters = append(append([]Filter(nil), c.Filters...), Filter{
		Column: column,
		Value:  prefix,
		Prefix: true,
	})

	return c
}

// Statement is a built query together with its named parameters.
type Statement struct {
	SQL    string
	Params map[string]any
}

// Build renders c against table.
func Build(table string, c Criteria) (*Statement, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: table is required", ErrInvalidCriteria)
	}

	if c.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrInvalidCriteria, c.Limit)
	}

	if c.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", ErrInvalidCriteria, c.Offset)
	}

	if c.Offset > 0 && c.Limit == 0 {
		return nil, fmt.Errorf("%w: offset requires a limit", ErrInvalidCriteria)
	}

	var sb strings.Builder

	projection := strings.TrimSpace(c.Select)
	if projection == "" {
		projection = "*"
	}

	sb.WriteString("SELECT ")
	sb.WriteString(projection)
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	params := make(map[string]any, len(c.Filters))
	conditions := make([]string, 0, len(c.Filters)+1)

	for i, f := range c.Filters {
		column := strings.TrimSpace(f.Column)
		if column == "" {
			return nil, fmt.Errorf("%w: filter %d has no column", ErrInvalidCriteria, i)
		}

		if f.Prefix {
			cond, err := prefixCondition(column, f.Value, params)
			if err != nil {
				return nil, err
			}

			if cond != "" {
				conditions = append(conditions, cond)
			}

			continue
		}

		if isEmpty(f.Value) {
			conditions = append(conditions, column)

			continue
		}

		name, err := bindName(column, "", params)
		if err != nil {
			return nil, err
		}

		params[name] = f.Value
		conditions = append(conditions, column+" = :"+name)
	}

	if where := strings.TrimSpace(c.Where); where != "" {
		conditions = append(conditions, where)
	}

	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if groupBy := strings.TrimSpace(c.GroupBy); groupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(groupBy)
	}

	if len(c.OrderBy) > 0 {
		terms := make([]string, 0, len(c.OrderBy))

		for _, term := range c.OrderBy {
			term = strings.TrimSpace(term)
			if term == "" {
				return nil, fmt.Errorf("%w: empty order by term", ErrInvalidCriteria)
			}

			if hasDirection(term) {
				return nil, fmt.Errorf(
					"%w: order by term %q already has a direction", ErrInvalidCriteria, term,
				)
			}

			terms = append(terms, term+" DESC")
		}

		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if c.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(c.Limit))
	}

	if c.Offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(c.Offset))
	}

	return &Statement{SQL: sb.String(), Params: params}, nil
}

// prefixCondition compares the leading characters of column with the
// bound prefix. substr counts characters on both backends.
func prefixCondition(column string, value any, params map[string]any) (string, error) {
	prefix, ok := value.(string)
	if !ok {
		return "", fmt.Errorf(
			"%w: prefix filter on %q needs a string, got %T", ErrInvalidCriteria, column, value,
		)
	}

	if prefix == "" {
		return "", nil
	}

	name, err := bindName(column, "_prefix", params)
	if err != nil {
		return "", err
	}

	params[name] = prefix
	params[name+"_len"] = utf8.RuneCountInString(prefix)

	return fmt.Sprintf("substr(%s, 1, :%s_len) = :%s", column, name, name), nil
}

func bindName(column, suffix string, params map[string]any) (string, error) {
	if !identifierRe.MatchString(column) {
		return "", fmt.Errorf(
			"%w: filter column %q cannot be bound", ErrInvalidCriteria, column,
		)
	}

	name := paramName(column) + suffix
	if _, exists := params[name]; exists {
		return "", fmt.Errorf(
			"%w: duplicate filter for parameter %q", ErrInvalidCriteria, name,
		)
	}

	return name, nil
}

func hasDirection(term string) bool {
	fields := strings.Fields(term)
	if len(fields) < 2 {
		return false
	}

	last := strings.ToUpper(fields[len(fields)-1])

	return last == "DESC" || last == "ASC"
}

// paramName derives the placeholder name for a column: "d.url" -> "d_url".
func paramName(column string) string {
	return strings.ReplaceAll(column, ".", "_")
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}
