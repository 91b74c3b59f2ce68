package mail

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	trailingWSRe  = regexp.MustCompile(`[ \t]+\n`)
	blockElements = "p, div, li, tr, h1, h2, h3, h4, h5, h6, table, ul, ol"
)

// HTMLToText flattens an HTML body to plain text. Blockquoted content is
// emitted with "> " prefixes so quote stripping treats it like a plain-text
// quote.
func HTMLToText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}

	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")

	// Outermost blockquotes only; nested ones are covered by their parent.
	doc.Find("blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("blockquote").Length() > 0 {
			return
		}
		s.Find(blockElements).Each(func(_ int, b *goquery.Selection) {
			b.AppendHtml("\n")
		})
		var quoted []string
		for _, line := range strings.Split(strings.TrimSpace(s.Text()), "\n") {
			quoted = append(quoted, "> "+strings.TrimSpace(line))
		}
		s.ReplaceWithHtml("\n" + html.EscapeString(strings.Join(quoted, "\n")) + "\n\n")
	})

	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = trailingWSRe.ReplaceAllString(text, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
