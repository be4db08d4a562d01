package sqlkit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Driver names accepted by NewBuilder and Open.
const (
	DriverMySQL    = "mysql"
	DriverMariaDB  = "mariadb"
	DriverPostgres = "postgres"
)

// identifierRe validates a single identifier segment (no quoting characters,
// no separators). Dotted names are validated per segment.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*$`)

// Dialect carries everything backend-specific the builder needs: identifier
// quoting, pagination syntax, placeholder conversion, upsert/RETURNING
// support and error classification. The builder holds exactly one Dialect
// and never branches on driver identity after construction.
type Dialect struct {
	DriverName       string
	SQLDriverName    string // name registered with database/sql
	QuoteChar        string
	MaxIdentifierLen int

	// NumberedPlaceholders reports whether the backend wants $1..$n instead
	// of the builder's neutral ? markers.
	NumberedPlaceholders bool

	// OffsetBeforeLimit selects `LIMIT offset, count` over
	// `LIMIT count OFFSET offset`.
	OffsetBeforeLimit bool

	SupportsCTE        bool
	SupportsReturning  bool
	SupportsOnConflict bool
	EscapesBackslash   bool

	randomFunc    string
	classifyError func(err error) *Error
}

// Dialects is the closed registry of supported backends. MariaDB shares the
// MySQL syntax family and differs only in its name.
var Dialects = &struct {
	MySQL      *Dialect
	MariaDB    *Dialect
	PostgreSQL *Dialect
}{
	MySQL: &Dialect{
		DriverName:           DriverMySQL,
		SQLDriverName:        "mysql",
		QuoteChar:            "`",
		MaxIdentifierLen:     64,
		NumberedPlaceholders: false,
		OffsetBeforeLimit:    true,
		SupportsCTE:          false,
		SupportsReturning:    false,
		SupportsOnConflict:   false,
		EscapesBackslash:     true,
		randomFunc:           "RAND()",
		classifyError:        classifyMySQLError,
	},
	MariaDB: &Dialect{
		DriverName:           DriverMariaDB,
		SQLDriverName:        "mysql",
		QuoteChar:            "`",
		MaxIdentifierLen:     64,
		NumberedPlaceholders: false,
		OffsetBeforeLimit:    true,
		SupportsCTE:          false,
		SupportsReturning:    false,
		SupportsOnConflict:   false,
		EscapesBackslash:     true,
		randomFunc:           "RAND()",
		classifyError:        classifyMySQLError,
	},
	PostgreSQL: &Dialect{
		DriverName:           DriverPostgres,
		SQLDriverName:        "postgres",
		QuoteChar:            `"`,
		MaxIdentifierLen:     63,
		NumberedPlaceholders: true,
		OffsetBeforeLimit:    false,
		SupportsCTE:          true,
		SupportsReturning:    true,
		SupportsOnConflict:   true,
		EscapesBackslash:     false,
		randomFunc:           "RANDOM()",
		classifyError:        classifyPostgresError,
	},
}

func getDialect(driver string) (*Dialect, error) {
	switch driver {
	case DriverMySQL:
		return Dialects.MySQL, nil
	case DriverMariaDB:
		return Dialects.MariaDB, nil
	case DriverPostgres:
		return Dialects.PostgreSQL, nil
	default:
		return nil, validationErrf("unsupported driver %q, must be one of mysql, mariadb, postgres", driver)
	}
}

// QuoteIdentifier quotes a table or column name. Dotted names are quoted per
// segment, so "public.users" becomes "public"."users". The `*` column is
// passed through untouched.
func (d *Dialect) QuoteIdentifier(name string) (string, error) {
	if name == "*" {
		return name, nil
	}
	if name == "" {
		return "", validationErrf("identifier cannot be empty")
	}
	segments := strings.Split(name, ".")
	quoted := make([]string, 0, len(segments))
	for _, seg := range segments {
		if len(seg) > d.MaxIdentifierLen {
			return "", validationErrf("identifier %q exceeds %d characters", seg, d.MaxIdentifierLen)
		}
		if !identifierRe.MatchString(seg) {
			return "", validationErrf("invalid identifier %q", seg)
		}
		quoted = append(quoted, d.QuoteChar+seg+d.QuoteChar)
	}
	return strings.Join(quoted, "."), nil
}

// EscapeValue renders v as a SQL literal. It exists for out-of-band uses such
// as dump helpers; the execution path is always parameterized.
func (d *Dialect) EscapeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05") + "'"
	case []byte:
		return "'" + d.escapeString(string(val)) + "'"
	case string:
		return "'" + d.escapeString(val) + "'"
	default:
		return "'" + d.escapeString(fmt.Sprint(val)) + "'"
	}
}

func (d *Dialect) escapeString(s string) string {
	if d.EscapesBackslash {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return strings.ReplaceAll(s, "'", "''")
}

// LimitSyntax builds the pagination clause. offset < 0 means no offset.
func (d *Dialect) LimitSyntax(limit, offset int) string {
	if offset > 0 {
		if d.OffsetBeforeLimit {
			return fmt.Sprintf("LIMIT %d, %d", offset, limit)
		}
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf("LIMIT %d", limit)
}

// RandomFunction returns the backend's random ordering expression.
func (d *Dialect) RandomFunction() string {
	return d.randomFunc
}

// ConvertPlaceholders rewrites the builder's neutral ? markers into the
// backend's native syntax. Markers inside quoted literals or quoted
// identifiers are left alone, so raw expressions survive the rewrite.
func (d *Dialect) ConvertPlaceholders(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var inQuote rune
	for _, r := range query {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
			b.WriteRune(r)
		case r == '\'' || r == '"' || r == '`':
			inQuote = r
			b.WriteRune(r)
		case r == '?':
			n++
			b.WriteString("$" + strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// QualifyTable prepends the configured schema to plain table names on
// backends that use schemas. Names that already contain a separator, a space
// or a parenthesis are treated as fully specified or as raw expressions.
func (d *Dialect) QualifyTable(name, schema string) string {
	if d.DriverName != DriverPostgres || schema == "" {
		return name
	}
	if strings.ContainsAny(name, ". (") {
		return name
	}
	return schema + "." + name
}

// ClassifyError maps a backend error into the package taxonomy. Errors that
// are already classified, context errors and nil pass through untouched.
func (d *Dialect) ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if classified := d.classifyError(err); classified != nil {
		return classified
	}
	return err
}
