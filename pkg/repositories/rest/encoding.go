package rest

import (
	"fmt"
	"strings"
)

// SpaceEncoding selects how spaces in the SQL text are sent.
type SpaceEncoding string

const (
	// SpaceEncodingFirst percent-encodes every space and then turns only the
	// first "%20" into "+". This is the behaviour deployed dashboards rely on.
	SpaceEncodingFirst SpaceEncoding = "first"
	// SpaceEncodingAll sends every space as "+".
	SpaceEncodingAll SpaceEncoding = "all"
)

// ParseSpaceEncoding validates a configured space encoding; empty means first.
func ParseSpaceEncoding(s string) (SpaceEncoding, error) {
	switch SpaceEncoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", SpaceEncodingFirst:
		return SpaceEncodingFirst, nil
	case SpaceEncodingAll:
		return SpaceEncodingAll, nil
	default:
		return "", fmt.Errorf("unknown space encoding %q (want %q or %q)", s, SpaceEncodingFirst, SpaceEncodingAll)
	}
}

// EncodeQuery percent-encodes sql for the qry parameter.
func EncodeQuery(sql string, mode SpaceEncoding) string {
	encoded := EncodeComponent(sql)
	if mode == SpaceEncodingAll {
		return strings.ReplaceAll(encoded, "%20", "+")
	}
	return strings.Replace(encoded, "%20", "+", 1)
}

const upperhex = "0123456789ABCDEF"

// EncodeComponent escapes s like a URI component: every byte outside
// A-Z a-z 0-9 - _ . ! ~ * ' ( ) becomes %XX, spaces included.
func EncodeComponent(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&15])
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
