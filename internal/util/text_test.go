package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCompanyName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: ""},
		{name: "punctuation only", input: "---", want: ""},
		{name: "ltd with dot", input: "Acme Corp Ltd.", want: "acme corp"},
		{name: "limited", input: "Widget Makers Limited", want: "widget makers"},
		{name: "plc dotted", input: "Big Bank P.L.C.", want: "big bank"},
		{name: "uk in parens", input: "Globex (UK)", want: "globex"},
		{name: "single suffix only", input: "Acme Group Holdings", want: "acme group"},
		{name: "collapse spaces", input: "  Foo    Bar   Ltd ", want: "foo bar"},
		{name: "ampersand removed not spaced", input: "Marks & Spencer PLC", want: "marks spencer"},
		{name: "joined by hyphen", input: "Rolls-Royce plc", want: "rollsroyce"},
		{name: "bare suffix", input: "Limited", want: ""},
		{name: "bare suffix punctuated", input: "Ltd.", want: ""},
		{name: "suffix inside word kept", input: "Grouping", want: "grouping"},
		{name: "incorporated", input: "Initech Incorporated", want: "initech"},
		{name: "no suffix", input: "Globex", want: "globex"},
		{name: "quotes kept", input: `"Quoted" Name`, want: `"quoted" name`},
		{name: "nbsp run", input: "Acme\u00a0\u00a0Ltd", want: "acme"},
		{name: "space then nbsp", input: "Acme \u00a0Ltd", want: "acme"},
		{name: "nbsp edges", input: "\u00a0Globex\u00a0", want: "globex"},
		{name: "vertical tabs", input: "Acme\v\vLtd", want: "acme"},
		{name: "ideographic spaces", input: "Acme\u3000\u3000Ltd", want: "acme"},
		{name: "bom and nbsp", input: "\ufeffInitech\u00a0\ufeffPLC", want: "initech"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeCompanyName(tc.input))
		})
	}
}

func TestNormalizeCompanyNameCaseInsensitive(t *testing.T) {
	assert.Equal(t, NormalizeCompanyName("Tech Corp Ltd"), NormalizeCompanyName("TECH CORP LTD"))
	assert.Equal(t, "tech corp", NormalizeCompanyName("TECH CORP LTD"))
}

func TestNormalizeCompanyNameIdempotentOnKeys(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"Globex",
		"  Foo    Bar   Ltd ",
		"Marks & Spencer PLC",
		"Big Bank P.L.C.",
		"Initech Incorporated",
		"Tab\tSeparated",
	}
	for _, in := range inputs {
		once := NormalizeCompanyName(in)
		assert.Equal(t, once, NormalizeCompanyName(once), "input %q", in)
	}
}

func TestNormalizeCompanyNameStripsOnlyOneSuffixPerCall(t *testing.T) {
	once := NormalizeCompanyName("Acme Corp Ltd.")
	assert.Equal(t, "acme corp", once)
	assert.Equal(t, "acme", NormalizeCompanyName(once))
}
