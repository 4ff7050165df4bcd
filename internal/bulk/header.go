package bulk

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrHeader is returned when the header row is missing or cannot be mapped.
var ErrHeader = errors.New("invalid csv header")

type field int

const (
	fieldRegistration field = iota
	fieldName
	fieldEmail
	fieldIgnored
)

var headerAliases = map[string]field{
	"matricula":           fieldRegistration,
	"registration_number": fieldRegistration,
	"registration number": fieldRegistration,
	"cpf":                 fieldRegistration,
	"nome":                fieldName,
	"name":                fieldName,
	"email":               fieldEmail,
	"e-mail":              fieldEmail,
	"id":                  fieldIgnored,
}

// columns maps each known field to its position in a row.
type columns struct {
	width int
	index map[field]int
}

func (c columns) has(f field) bool {
	_, ok := c.index[f]
	return ok
}

func (c columns) get(row []string, f field) string {
	i, ok := c.index[f]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseHeader(header []string, required ...field) (columns, error) {
	cols := columns{width: len(header), index: make(map[field]int, len(header))}
	for i, cell := range header {
		// Spreadsheet exports often end every row with a delimiter.
		if strings.TrimSpace(cell) == "" {
			continue
		}
		name := foldHeader(cell)
		f, ok := headerAliases[name]
		if !ok {
			return columns{}, fmt.Errorf("%w: unknown column %q", ErrHeader, strings.TrimSpace(cell))
		}
		if f == fieldIgnored {
			continue
		}
		if _, dup := cols.index[f]; dup {
			return columns{}, fmt.Errorf("%w: duplicate column %q", ErrHeader, strings.TrimSpace(cell))
		}
		cols.index[f] = i
	}

	for _, f := range required {
		if !cols.has(f) {
			return columns{}, fmt.Errorf("%w: missing %s column", ErrHeader, f)
		}
	}
	return cols, nil
}

func (f field) String() string {
	switch f {
	case fieldRegistration:
		return "registration number"
	case fieldName:
		return "name"
	case fieldEmail:
		return "email"
	}
	return "ignored"
}

// foldHeader lower-cases a header cell and strips its accents, so "Matrícula"
// and "MATRICULA" resolve to the same alias.
func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
