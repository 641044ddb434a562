package format

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RichText reduces note markup (rich-text editor output) to plain text.
//
// Values without a '<' are returned with whitespace collapsed. Markup that
// fails to parse is kept as-is rather than dropped.
func RichText(s string) string {
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "<") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	// Block elements run together in Text(); separate them first.
	doc.Find("br, p, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AfterHtml(" ")
	})
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Label returns a display label for a symptom. A stored label wins; otherwise
// the machine name is title-cased ("shortness_of_breath" -> "Shortness Of Breath").
func Label(name, label string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	n := strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if n == "" {
		return ""
	}
	// A Caser is stateful; build one per call.
	return cases.Title(language.English).String(n)
}
