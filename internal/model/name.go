package model

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Name is a normalized display label: surrounding whitespace is trimmed
// and internal runs of whitespace (including newlines and tabs) collapse
// to a single space. Two Names built from raw strings that differ only
// in whitespace are equal.
type Name struct {
	value string
}

// NameOf normalizes s into a Name.
func NameOf(s string) Name {
	return Name{value: whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")}
}

func (n Name) String() string {
	return n.value
}
