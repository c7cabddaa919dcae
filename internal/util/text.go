package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	rePunct = regexp.MustCompile("[.,/#!$%^&*;:{}=\\-_`~()]")
	// Whitespace as browsers see it: NBSP and the other Unicode space
	// separators, vertical tab, line/paragraph separators and BOM.
	reSpaces = regexp.MustCompile(`[\s\p{Zs}\v\x{2028}\x{2029}\x{FEFF}]{2,}`)
)

// companySuffixes are tried in order and at most one is removed.
// Entries are punctuation-free since punctuation is stripped first.
var companySuffixes = []string{
	" limited",
	" ltd",
	" plc",
	" llp",
	" inc",
	" incorporated",
	" corporation",
	" corp",
	" group",
	" holdings",
	" uk",
}

// NormalizeCompanyName maps a free-text employer name to the key used to
// join page content against the sponsor register.
func NormalizeCompanyName(name string) string {
	if name == "" {
		return ""
	}

	s := strings.ToLower(name)
	s = rePunct.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimFunc(s, isSpace)

	for _, suffix := range companySuffixes {
		if s == suffix[1:] {
			return ""
		}
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
			break
		}
	}

	return strings.TrimFunc(s, isSpace)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
