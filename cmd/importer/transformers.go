package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type identityMapper struct{}

func (m *identityMapper) Map(csvValue string) (any, error) {
	return csvValue, nil
}

// Identity passes the cell through unchanged.
func Identity() FieldMapper {
	return &identityMapper{}
}

// trimMapper drops surrounding whitespace and maps blank cells to nil.
type trimMapper struct{}

func (m *trimMapper) Map(csvValue string) (any, error) {
	v := strings.TrimSpace(csvValue)
	if v == "" {
		return nil, nil
	}
	return v, nil
}

// Trim returns a mapper that trims whitespace. Blank cells are omitted.
func Trim() FieldMapper {
	return &trimMapper{}
}

type toLowerMapper struct{}

func (m *toLowerMapper) Map(csvValue string) (any, error) {
	v := strings.ToLower(strings.TrimSpace(csvValue))
	if v == "" {
		return nil, nil
	}
	return v, nil
}

// ToLower returns a mapper that trims and lower-cases the cell.
func ToLower() FieldMapper {
	return &toLowerMapper{}
}

type toIntMapper struct{}

func (m *toIntMapper) Map(csvValue string) (any, error) {
	v := strings.TrimSpace(csvValue)
	if v == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
	if err != nil {
		return nil, fmt.Errorf("invalid integer format: %v", err)
	}
	return i, nil
}

// ToInt returns a mapper that converts the cell to int. A trailing percent
// sign is accepted.
func ToInt() FieldMapper {
	return &toIntMapper{}
}

type toFloat64Mapper struct{}

func (m *toFloat64Mapper) Map(csvValue string) (any, error) {
	v := strings.TrimSpace(csvValue)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid float format: %v", err)
	}
	return f, nil
}

// ToFloat64 returns a mapper that converts the cell to float64.
func ToFloat64() FieldMapper {
	return &toFloat64Mapper{}
}

type toMoneyMapper struct{}

func (m *toMoneyMapper) Map(csvValue string) (any, error) {
	v := strings.TrimSpace(csvValue)
	for _, symbol := range []string{"$", "€", "£", "¥", ","} {
		v = strings.ReplaceAll(v, symbol, "")
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %v", err)
	}
	return f, nil
}

// ToMoney converts amounts such as "$43,500" to float64.
func ToMoney() FieldMapper {
	return &toMoneyMapper{}
}

type toDateMapper struct {
	layouts []string
}

func (m *toDateMapper) Map(csvValue string) (any, error) {
	v := strings.TrimSpace(csvValue)
	if v == "" {
		return nil, nil
	}
	for _, layout := range m.layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return nil, fmt.Errorf("invalid date format (expected one of %s)", strings.Join(m.layouts, ", "))
}

// ToDate parses the cell with the first matching layout and emits an
// RFC 3339 timestamp. Without layouts it accepts the common ISO 8601 forms.
// Common layouts:
//   - "2006-01-02" for YYYY-MM-DD
//   - "01/02/2006" for MM/DD/YYYY
func ToDate(layouts ...string) FieldMapper {
	if len(layouts) == 0 {
		layouts = []string{
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
	}
	return &toDateMapper{layouts: layouts}
}

type enumMapper struct {
	allowed []string
	lookup  map[string]string
}

func (m *enumMapper) Map(csvValue string) (any, error) {
	v := strings.TrimSpace(csvValue)
	if v == "" {
		return nil, nil
	}
	if canonical, ok := m.lookup[normalizeEnum(v)]; ok {
		return canonical, nil
	}
	return nil, fmt.Errorf("value %q is not one of %s", v, strings.Join(m.allowed, ", "))
}

// Enum accepts one of allowed, ignoring case and treating spaces and
// underscores as dashes, so "Closed Won" maps to "closed-won".
func Enum[S ~string](allowed ...S) FieldMapper {
	m := &enumMapper{lookup: make(map[string]string, len(allowed))}
	for _, a := range allowed {
		m.allowed = append(m.allowed, string(a))
		m.lookup[normalizeEnum(string(a))] = string(a)
	}
	slices.Sort(m.allowed)
	return m
}

func normalizeEnum(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(v)
}

type defaultMapper struct {
	inner        FieldMapper
	defaultValue any
}

func (m *defaultMapper) Map(csvValue string) (any, error) {
	if strings.TrimSpace(csvValue) == "" {
		return m.defaultValue, nil
	}
	return m.inner.Map(csvValue)
}

// Default wraps inner and substitutes defaultValue for blank cells.
func Default(inner FieldMapper, defaultValue any) FieldMapper {
	return &defaultMapper{inner: inner, defaultValue: defaultValue}
}

type customMapper struct {
	fn func(string) (any, error)
}

func (m *customMapper) Map(csvValue string) (any, error) {
	return m.fn(csvValue)
}

// Custom wraps a plain function as a FieldMapper.
func Custom(fn func(string) (any, error)) FieldMapper {
	return &customMapper{fn: fn}
}
