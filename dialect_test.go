package sqlkit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentifier(t *testing.T) {
	t.Run("mysql uses backticks", func(t *testing.T) {
		q, err := Dialects.MySQL.QuoteIdentifier("users")
		assert.NoError(t, err)
		assert.Equal(t, "`users`", q)
	})

	t.Run("postgres uses double quotes", func(t *testing.T) {
		q, err := Dialects.PostgreSQL.QuoteIdentifier("users")
		assert.NoError(t, err)
		assert.Equal(t, `"users"`, q)
	})

	t.Run("dotted names are quoted per segment", func(t *testing.T) {
		q, err := Dialects.PostgreSQL.QuoteIdentifier("public.users")
		assert.NoError(t, err)
		assert.Equal(t, `"public"."users"`, q)
	})

	t.Run("star passes through", func(t *testing.T) {
		q, err := Dialects.MySQL.QuoteIdentifier("*")
		assert.NoError(t, err)
		assert.Equal(t, "*", q)
	})

	t.Run("empty identifier is rejected", func(t *testing.T) {
		_, err := Dialects.MySQL.QuoteIdentifier("")
		require.Error(t, err)
	})

	t.Run("quoting characters are rejected", func(t *testing.T) {
		_, err := Dialects.MySQL.QuoteIdentifier("us`ers")
		require.Error(t, err)
		_, err = Dialects.PostgreSQL.QuoteIdentifier(`us"ers`)
		require.Error(t, err)
	})

	t.Run("length limits differ per backend", func(t *testing.T) {
		name64 := strings.Repeat("a", 64)
		_, err := Dialects.MySQL.QuoteIdentifier(name64)
		assert.NoError(t, err)
		_, err = Dialects.PostgreSQL.QuoteIdentifier(name64)
		require.Error(t, err)
	})
}

func TestEscapeValue(t *testing.T) {
	d := Dialects.MySQL
	assert.Equal(t, "NULL", d.EscapeValue(nil))
	assert.Equal(t, "TRUE", d.EscapeValue(true))
	assert.Equal(t, "42", d.EscapeValue(42))
	assert.Equal(t, "3.5", d.EscapeValue(3.5))
	assert.Equal(t, `'it''s'`, d.EscapeValue("it's"))
	assert.Equal(t, `'a\\b'`, d.EscapeValue(`a\b`))
	assert.Equal(t, `'a\b'`, Dialects.PostgreSQL.EscapeValue(`a\b`))

	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "'2024-05-01 12:30:00'", d.EscapeValue(ts))
}

func TestLimitSyntax(t *testing.T) {
	t.Run("mysql puts the offset first", func(t *testing.T) {
		assert.Equal(t, "LIMIT 20, 10", Dialects.MySQL.LimitSyntax(10, 20))
		assert.Equal(t, "LIMIT 10", Dialects.MySQL.LimitSyntax(10, 0))
	})

	t.Run("postgres uses OFFSET", func(t *testing.T) {
		assert.Equal(t, "LIMIT 10 OFFSET 20", Dialects.PostgreSQL.LimitSyntax(10, 20))
		assert.Equal(t, "LIMIT 10", Dialects.PostgreSQL.LimitSyntax(10, 0))
	})
}

func TestConvertPlaceholders(t *testing.T) {
	t.Run("mysql is identity", func(t *testing.T) {
		q := "SELECT * FROM t WHERE a = ? AND b = ?"
		assert.Equal(t, q, Dialects.MySQL.ConvertPlaceholders(q))
	})

	t.Run("postgres numbers markers left to right", func(t *testing.T) {
		q := `SELECT * FROM "t" WHERE a = ? AND b IN (?,?)`
		assert.Equal(t, `SELECT * FROM "t" WHERE a = $1 AND b IN ($2,$3)`, Dialects.PostgreSQL.ConvertPlaceholders(q))
	})

	t.Run("markers inside literals survive", func(t *testing.T) {
		q := `SELECT * FROM t WHERE a = '?' AND b = ?`
		assert.Equal(t, `SELECT * FROM t WHERE a = '?' AND b = $1`, Dialects.PostgreSQL.ConvertPlaceholders(q))
	})
}

func TestQualifyTable(t *testing.T) {
	pg := Dialects.PostgreSQL
	assert.Equal(t, "public.users", pg.QualifyTable("users", "public"))
	assert.Equal(t, "audit.events", pg.QualifyTable("audit.events", "public"))
	assert.Equal(t, "generate_series(1, 3) g", pg.QualifyTable("generate_series(1, 3) g", "public"))
	assert.Equal(t, "users", Dialects.MySQL.QualifyTable("users", "public"))
}

func TestRandomFunction(t *testing.T) {
	assert.Equal(t, "RAND()", Dialects.MySQL.RandomFunction())
	assert.Equal(t, "RAND()", Dialects.MariaDB.RandomFunction())
	assert.Equal(t, "RANDOM()", Dialects.PostgreSQL.RandomFunction())
}
