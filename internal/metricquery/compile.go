package metricquery

import (
	"fmt"
	"strings"
)

// Placeholder styles for bind parameters.
type Placeholder int

const (
	// Question emits "?" (SQLite).
	Question Placeholder = iota
	// Dollar emits "$1", "$2", ... (PostgreSQL).
	Dollar
)

// Compile renders p as a SQL boolean expression with bind parameters.
// Values are never interpolated into the SQL text.
func Compile(p Predicate, style Placeholder) (string, []any, error) {
	c := &compiler{style: style}
	sql, err := c.predicate(p)
	if err != nil {
		return "", nil, err
	}
	return sql, c.args, nil
}

// CompileFrom is Compile with parameter numbering starting after offset
// existing parameters. Only meaningful for Dollar.
func CompileFrom(p Predicate, style Placeholder, offset int) (string, []any, error) {
	c := &compiler{style: style, n: offset}
	sql, err := c.predicate(p)
	if err != nil {
		return "", nil, err
	}
	return sql, c.args, nil
}

type compiler struct {
	style Placeholder
	n     int
	args  []any
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	c.n++
	if c.style == Dollar {
		return fmt.Sprintf("$%d", c.n)
	}
	return "?"
}

func (c *compiler) predicate(p Predicate) (string, error) {
	switch v := p.(type) {
	case nil:
		return "1 = 1", nil
	case Eq:
		if err := checkColumn(v.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", v.Column, c.bind(v.Value)), nil
	case HasPrefix:
		if err := checkColumn(v.Column); err != nil {
			return "", err
		}
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, v.Column, c.bind(escapeLike(v.Prefix)+"%")), nil
	case Within:
		return fmt.Sprintf("%s BETWEEN %s AND %s", ColMetricDate, c.bind(v.From), c.bind(v.To)), nil
	case Outside:
		return fmt.Sprintf("(%s < %s OR %s > %s)", ColMetricDate, c.bind(v.From), ColMetricDate, c.bind(v.To)), nil
	case And:
		if len(v.Predicates) == 0 {
			return "1 = 1", nil
		}
		parts := make([]string, 0, len(v.Predicates))
		for _, inner := range v.Predicates {
			sql, err := c.predicate(inner)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		return strings.Join(parts, " AND "), nil
	case *And:
		return c.predicate(*v)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func checkColumn(col Column) error {
	if !knownColumns[col] {
		return fmt.Errorf("unknown column %q", col)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so the prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
