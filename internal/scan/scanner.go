package scan

import (
	"github.com/PuerkitoBio/goquery"

	"sponsorcheck/internal"
	"sponsorcheck/internal/page"
	"sponsorcheck/internal/registry"
)

// Report summarizes one full scan pass.
type Report struct {
	Host     string
	Site     string
	Known    bool
	Outcomes []page.Outcome
}

func (r Report) Sponsors() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Sponsor {
			n++
		}
	}
	return n
}

func (r Report) Changed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Changed {
			n++
		}
	}
	return n
}

func (r Report) Rows() []internal.MatchRow {
	out := make([]internal.MatchRow, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, internal.MatchRow{Host: r.Host, Site: r.Site, Text: o.Text, Key: o.Key, Sponsor: o.Sponsor})
	}
	return out
}

// Scanner runs single synchronous passes over a document.
type Scanner struct {
	sites   Sites
	matcher *page.Matcher
}

func NewScanner(sites Sites) *Scanner {
	return &Scanner{sites: sites, matcher: page.NewMatcher()}
}

func (s *Scanner) Sites() Sites {
	return s.sites
}

// Scan applies the matcher to every company-name element for host. Unknown
// hosts are a no-op.
func (s *Scanner) Scan(doc *goquery.Document, host string, reg registry.Lookup) Report {
	rep := Report{Host: host}
	site, ok := s.sites.Match(host)
	if !ok || doc == nil {
		return rep
	}
	rep.Site = site.Name
	rep.Known = true
	rep.Outcomes = s.matcher.Apply(doc.Find(site.selector()), reg)
	return rep
}

// Clear removes every badge and marker from doc regardless of host.
func (s *Scanner) Clear(doc *goquery.Document) int {
	if doc == nil {
		return 0
	}
	return page.ClearAll(doc.Selection)
}
