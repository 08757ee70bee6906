package discover

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sources lists where candidate URLs come from.
type Sources struct {
	Feeds []string `yaml:"feeds"`
	Seeds []string `yaml:"seeds"`
}

// DefaultSources is the curated set of social-good feeds and seed pages used
// when no sources file is configured.
func DefaultSources() Sources {
	return Sources{
		Feeds: []string{
			"https://www.goodnewsnetwork.org/feed/",
			"https://www.positive.news/feed/",
			"https://www.upworthy.com/rss.xml",
			"https://www.huffpost.com/section/good-news/feed",
			"https://www.today.com/news/good-news/rss.xml",
			"https://www.philanthropy.com/feed",
			"https://www.ssireview.org/feed/",
			"https://nonprofitquarterly.org/feed/",
			"https://techcrunch.com/tag/social-good/feed/",
			"https://www.fastcompany.com/tag/social-impact/feed",
			"https://feeds.bbci.co.uk/news/rss.xml",
			"https://rss.cnn.com/rss/edition.rss",
		},
		Seeds: []string{
			"https://www.gatesfoundation.org/ideas",
			"https://www.charitywater.org/blog",
			"https://www.kiva.org/about",
			"https://www.givedirectly.org/",
			"https://www.effectivealtruism.org/",
			"https://www.goodnewsnetwork.org/",
			"https://www.positive.news/",
			"https://www.upworthy.com/",
		},
	}
}

// LoadSources reads a YAML sources file. An empty path yields the defaults.
func LoadSources(path string) (Sources, error) {
	if path == "" {
		return DefaultSources(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, fmt.Errorf("read sources %s: %w", path, err)
	}
	var s Sources
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Sources{}, fmt.Errorf("parse sources %s: %w", path, err)
	}
	return s, nil
}
