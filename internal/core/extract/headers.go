package extract

import "math/rand"

// HeaderProfile is a coherent set of request headers for one client type.
type HeaderProfile struct {
	UserAgent       string
	Accept          string
	AcceptLanguage  string
	SecFetchDest    string
	SecFetchMode    string
	SecFetchSite    string
	SecChUa         string
	SecChUaMobile   string
	SecChUaPlatform string
}

// Strategy selects a header profile family. Renderers walk strategies in
// order until one returns a page that is not a bot challenge.
type Strategy string

const (
	StrategyDesktop Strategy = "desktop"
	StrategyMobile  Strategy = "mobile"
	StrategyCrawler Strategy = "crawler"
)

const CrawlerUserAgent = "Mozilla/5.0 (compatible; ContentScoreBot/1.0)"

const htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

var profiles = map[Strategy][]HeaderProfile{
	StrategyDesktop: {
		{
			UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			Accept:          htmlAccept,
			AcceptLanguage:  "en-US,en;q=0.9",
			SecFetchDest:    "document",
			SecFetchMode:    "navigate",
			SecFetchSite:    "none",
			SecChUa:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
			SecChUaMobile:   "?0",
			SecChUaPlatform: `"macOS"`,
		},
		{
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			Accept:          htmlAccept,
			AcceptLanguage:  "en-US,en;q=0.9",
			SecFetchDest:    "document",
			SecFetchMode:    "navigate",
			SecFetchSite:    "none",
			SecChUa:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
			SecChUaMobile:   "?0",
			SecChUaPlatform: `"Windows"`,
		},
	},
	StrategyMobile: {
		{
			UserAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 18_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Mobile/15E148 Safari/604.1",
			Accept:          htmlAccept,
			AcceptLanguage:  "en-US,en;q=0.9",
			SecFetchDest:    "document",
			SecFetchMode:    "navigate",
			SecFetchSite:    "none",
			SecChUaMobile:   "?1",
			SecChUaPlatform: `"iOS"`,
		},
		{
			UserAgent:       "Mozilla/5.0 (Linux; Android 14; Pixel 8 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
			Accept:          htmlAccept,
			AcceptLanguage:  "en-US,en;q=0.9",
			SecFetchDest:    "document",
			SecFetchMode:    "navigate",
			SecFetchSite:    "none",
			SecChUa:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
			SecChUaMobile:   "?1",
			SecChUaPlatform: `"Android"`,
		},
	},
	StrategyCrawler: {
		{
			UserAgent:      CrawlerUserAgent,
			Accept:         htmlAccept,
			AcceptLanguage: "en-US,en;q=0.9",
		},
	},
}

// Strategies lists strategies in order of preference.
func Strategies() []Strategy {
	return []Strategy{StrategyDesktop, StrategyMobile, StrategyCrawler}
}

// Profile returns a random profile for the strategy.
func Profile(s Strategy) HeaderProfile {
	list, ok := profiles[s]
	if !ok || len(list) == 0 {
		return profiles[StrategyDesktop][0]
	}
	return list[rand.Intn(len(list))]
}

// Headers renders the profile as extra request headers, omitting the
// client-hint and fetch-metadata headers a profile does not define.
func (p HeaderProfile) Headers() map[string]string {
	h := map[string]string{
		"Accept":                    p.Accept,
		"Accept-Language":           p.AcceptLanguage,
		"Upgrade-Insecure-Requests": "1",
	}
	if p.SecFetchDest != "" {
		h["Sec-Fetch-Dest"] = p.SecFetchDest
		h["Sec-Fetch-Mode"] = p.SecFetchMode
		h["Sec-Fetch-Site"] = p.SecFetchSite
	}
	if p.SecChUa != "" {
		h["Sec-Ch-Ua"] = p.SecChUa
	}
	if p.SecChUaMobile != "" {
		h["Sec-Ch-Ua-Mobile"] = p.SecChUaMobile
		h["Sec-Ch-Ua-Platform"] = p.SecChUaPlatform
	}
	return h
}
