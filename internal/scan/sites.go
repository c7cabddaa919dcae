package scan

import (
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Site maps hostnames to the selectors that locate company-name elements.
type Site struct {
	Name      string   `yaml:"name"`
	Hosts     []string `yaml:"hosts"`
	Selectors []string `yaml:"selectors"`
}

type Sites []Site

type sitesFile struct {
	Sites Sites `yaml:"sites"`
}

func DefaultSites() Sites {
	return Sites{
		{
			Name:  "linkedin",
			Hosts: []string{"linkedin.com"},
			Selectors: []string{
				".job-card-container__primary-description",
				".artdeco-entity-lockup__subtitle",
				".job-details-jobs-unified-top-card__company-name",
			},
		},
		{
			Name:  "indeed",
			Hosts: []string{"indeed.com"},
			Selectors: []string{
				".companyName",
				`[data-testid="company-name"]`,
			},
		},
	}
}

// Match returns the first site whose host pattern occurs in host.
func (s Sites) Match(host string) (Site, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return Site{}, false
	}
	for _, site := range s {
		for _, h := range site.Hosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" && strings.Contains(host, h) {
				return site, true
			}
		}
	}
	return Site{}, false
}

func (s Sites) Validate() error {
	for i, site := range s {
		if strings.TrimSpace(site.Name) == "" {
			return eris.Errorf("sites: entry %d has no name", i)
		}
		if len(site.Hosts) == 0 {
			return eris.Errorf("sites: %s has no hosts", site.Name)
		}
		if len(site.Selectors) == 0 {
			return eris.Errorf("sites: %s has no selectors", site.Name)
		}
		for _, sel := range site.Selectors {
			if _, err := cascadia.Compile(sel); err != nil {
				return eris.Wrapf(err, "sites: %s selector %q", site.Name, sel)
			}
		}
	}
	return nil
}

// selector joins the site's selectors into one group so each element is
// visited once, in document order.
func (s Site) selector() string {
	return strings.Join(s.Selectors, ", ")
}

// LoadSites reads site profiles from a YAML file. An empty path yields the
// built-in profiles.
func LoadSites(path string) (Sites, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSites(), nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "sites: read file")
	}
	var f sitesFile
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return nil, eris.Wrap(err, "sites: parse yaml")
	}
	if len(f.Sites) == 0 {
		return nil, eris.Errorf("sites: %s defines no sites", path)
	}
	if err := f.Sites.Validate(); err != nil {
		return nil, err
	}
	return f.Sites, nil
}
