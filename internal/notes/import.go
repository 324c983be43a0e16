package notes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Imported is the cleaned result of an HTML notes upload.
type Imported struct {
	Title   string
	Content string
}

// ImportHTML strips chrome and markup from an uploaded HTML document
// and returns plain text suitable for teach-to-learn grounding.
func ImportHTML(html string) (*Imported, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside, iframe, noscript").Remove()

	title := extractTitle(doc)

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, fmt.Errorf("no textual content in document")
	}

	return &Imported{Title: title, Content: text}, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return "Imported Notes"
}
