package markdown

import (
	"bytes"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// ContentSelectors are tried in order; the first match holding more than
// MinContentChars of text is taken as the article body.
var ContentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	".post-content",
	".entry-content",
}

const MinContentChars = 100

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	inlineSpace  = regexp.MustCompile(`[ \t\f\v]+`)
	datePattern  = regexp.MustCompile(`\b\d{4}/\d{2}/\d{2}\b|\b\d{2}/\d{2}/\d{4}\b|\b[A-Za-z]{3} \d{1,2}, \d{4}\b`)
	linkPattern  = regexp.MustCompile(`https?://[^\s)]+`)
	imgLine      = regexp.MustCompile(`^!\[[^\]]*\]\((https?:\/\/[^\)]+)\)(\]\([^\)]+\))?$`)
	dateLine     = regexp.MustCompile(`^[A-Za-z]{3}\s\d{1,2},\s\d{4}\\?$`)
	imgInline    = regexp.MustCompile(`!\[[^\]]*\]\([^\)]+\)`)
	badEscape    = regexp.MustCompile(`\\([^\\nrt"'bfvx0-7])`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

var boilerplateKeywords = []string{
	"cookie", "consent", "banner", "navbar", "nav-", "menu-", "header",
	"pagination", "share", "search-", "signup", "signin", "login",
	"ad-", "advert", "promo", "modal", "popup", "dialog",
	"breadcrumbs", "breadcrumb", "sidebar",
}

// Content is the readable part of an HTML document.
type Content struct {
	Title    string
	Text     string
	Selector string
}

// Select picks the main content of a document. Text keeps line structure
// but collapses runs of inline whitespace.
func Select(html string) (Content, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Content{}, err
	}
	doc.Find("script, style, noscript, template").Remove()

	out := Content{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	for _, sel := range ContentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := NormalizeText(node.Text())
		if len([]rune(text)) > MinContentChars {
			out.Text, out.Selector = text, sel
			return out, nil
		}
	}
	out.Text = NormalizeText(doc.Find("body").Text())
	out.Selector = "body"
	return out, nil
}

// SelectMarkdown is Select with the chosen node converted to markdown after
// boilerplate removal.
func SelectMarkdown(html string) (Content, error) {
	c, err := Select(html)
	if err != nil {
		return c, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return c, err
	}
	node := doc.Find(c.Selector).First()
	if converted := ConvertSelection(node); converted != "" {
		c.Text = converted
	}
	return c, nil
}

// NormalizeText trims each line, collapses inline whitespace and drops
// blank lines beyond a single paragraph break.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(l, " "))
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(multiNewline.ReplaceAllString(joined, "\n\n"))
}

// ConvertSelection strips boilerplate from a node and renders it as markdown.
func ConvertSelection(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	sel = sel.Clone()
	sel.Find("script, style, noscript, nav, header, aside, form, iframe, svg, button, input").Remove()
	sel.Find(`[role="navigation"], [role="banner"], [role="contentinfo"], [aria-label*="cookie" i], [aria-modal]`).Remove()
	sel.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		classVal, _ := s.Attr("class")
		idVal, _ := s.Attr("id")
		lower := strings.ToLower(classVal + " " + idVal)
		for _, kw := range boilerplateKeywords {
			if strings.Contains(lower, kw) {
				s.Remove()
				return
			}
		}
	})

	body, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	out, err := md.NewConverter("", true, nil).ConvertString(body)
	if err != nil {
		return ""
	}
	out = RemoveDuplicates(out)
	out = CleanMarkdownBoilerplate(out)
	return strings.TrimSpace(multiNewline.ReplaceAllString(out, "\n\n"))
}

// RemoveDuplicates drops repeated image-link lines and repeated date lines.
func RemoveDuplicates(markdown string) string {
	var buf bytes.Buffer
	seenLinks := make(map[string]bool)
	seenDates := make(map[string]bool)
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		norm := datePattern.ReplaceAllString(linkPattern.ReplaceAllString(trimmed, "LINK"), "DATE")

		if imgLine.MatchString(trimmed) {
			if seenLinks[norm] {
				continue
			}
			seenLinks[norm] = true
		}
		if dateLine.MatchString(trimmed) {
			if seenDates[norm] {
				continue
			}
			seenDates[norm] = true
		}
		buf.WriteString(trimmed + "\n")
	}
	return buf.String()
}

var invisibleChars = strings.NewReplacer(
	"\u200B", "", "\u200C", "", "\u200D", "", "\u200E", "", "\u200F", "",
	"\u2028", "", "\u2029", "", "\uFEFF", "", "\uFFFD", "", "\uFFFF", "",
)

// CleanText removes control and zero-width characters that break JSON
// prompts, and unescapes stray backslashes left by markdown conversion.
func CleanText(text string) string {
	text = badEscape.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, `\\`, `\`)
	text = controlChars.ReplaceAllString(text, "")
	return invisibleChars.Replace(text)
}

// CleanMarkdownBoilerplate removes blank lines and pure image lines.
func CleanMarkdownBoilerplate(mdText string) string {
	lines := strings.Split(mdText, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		line := strings.TrimSpace(l)
		if line == "" {
			continue
		}
		if imgInline.MatchString(line) && strings.TrimSpace(imgInline.ReplaceAllString(line, "")) == "" {
			continue
		}
		out = append(out, CleanText(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
