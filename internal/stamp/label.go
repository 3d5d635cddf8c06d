package stamp

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidOrdinal is returned for ordinals below 1.
var ErrInvalidOrdinal = errors.New("ordinal must be a positive integer")

var numerals = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// Roman returns n in uppercase subtractive Roman notation.
func Roman(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidOrdinal
	}
	var sb strings.Builder
	for _, r := range numerals {
		for n >= r.value {
			sb.WriteString(r.symbol)
			n -= r.value
		}
	}
	return sb.String(), nil
}

// FormatLabel expands {ROMAN}, {roman} and {page} in format for ordinal n.
func FormatLabel(format string, n int) (string, error) {
	roman, err := Roman(n)
	if err != nil {
		return "", err
	}
	label := strings.ReplaceAll(format, "{ROMAN}", roman)
	label = strings.ReplaceAll(label, "{roman}", strings.ToLower(roman))
	label = strings.ReplaceAll(label, "{page}", strconv.Itoa(n))
	return label, nil
}
