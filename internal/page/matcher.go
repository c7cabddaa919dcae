// Package page applies and removes sponsor badges on parsed HTML documents.
package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sponsorcheck/internal/registry"
	"sponsorcheck/internal/util"
)

const (
	BadgeClass  = "sponsor-checkmark"
	CheckedAttr = "data-sponsor-checked"
	BadgeTitle  = "Licensed Sponsor confirmed by GOV.UK"
)

const badgeSVG = `<svg width="16" height="16" viewBox="0 0 24 24" fill="none" xmlns="http://www.w3.org/2000/svg" style="vertical-align: middle; margin-left: 4px;">` +
	`<circle cx="12" cy="12" r="10" fill="#4CAF50"></circle>` +
	`<path d="M8 12L11 15L16 9" stroke="white" stroke-width="2" stroke-linecap="round" stroke-linejoin="round"></path>` +
	`</svg>`

// Outcome describes what Apply decided for one element.
type Outcome struct {
	Text    string
	Key     string
	Sponsor bool
	Changed bool
}

type Matcher struct {
	badgeHTML string
}

func NewMatcher() *Matcher {
	return &Matcher{
		badgeHTML: `<span class="` + BadgeClass + `" title="` + BadgeTitle + `">` + badgeSVG + `</span>`,
	}
}

// Apply recomputes the badge state of every element in sel against reg.
// Elements with no text are left untouched and produce no outcome.
func (m *Matcher) Apply(sel *goquery.Selection, reg registry.Lookup) []Outcome {
	out := make([]Outcome, 0, sel.Length())
	sel.Each(func(_ int, el *goquery.Selection) {
		if o, ok := m.applyOne(el, reg); ok {
			out = append(out, o)
		}
	})
	return out
}

func (m *Matcher) applyOne(el *goquery.Selection, reg registry.Lookup) (Outcome, bool) {
	text := VisibleText(el)
	if text == "" {
		return Outcome{}, false
	}

	key := util.NormalizeCompanyName(text)
	o := Outcome{Text: text, Key: key}
	o.Sponsor = key != "" && reg != nil && reg.Contains(key)

	badges := el.ChildrenFiltered("." + BadgeClass)
	if o.Sponsor {
		if badges.Length() > 1 {
			badges.Slice(1, badges.Length()).Remove()
			o.Changed = true
		}
		if badges.Length() == 0 {
			el.AppendHtml(m.badgeHTML)
			o.Changed = true
		}
		if v, ok := el.Attr(CheckedAttr); !ok || v != "true" {
			el.SetAttr(CheckedAttr, "true")
			o.Changed = true
		}
		return o, true
	}

	if badges.Length() > 0 {
		badges.Remove()
		o.Changed = true
	}
	if _, ok := el.Attr(CheckedAttr); ok {
		el.RemoveAttr(CheckedAttr)
		o.Changed = true
	}
	return o, true
}

// ClearAll strips every badge and checked marker below root and returns how
// many nodes were touched.
func ClearAll(root *goquery.Selection) int {
	badges := root.Find("." + BadgeClass)
	checked := root.Find("[" + CheckedAttr + "]")
	n := badges.Length() + checked.Length()
	badges.Remove()
	checked.RemoveAttr(CheckedAttr)
	return n
}

// VisibleText returns the trimmed text of el without any badge subtree.
func VisibleText(el *goquery.Selection) string {
	if el.Find("."+BadgeClass).Length() == 0 {
		return strings.TrimSpace(el.Text())
	}
	clone := el.Clone()
	clone.Find("." + BadgeClass).Remove()
	return strings.TrimSpace(clone.Text())
}
