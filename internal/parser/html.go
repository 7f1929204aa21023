package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLFlattener converts HTML email bodies to plain text so the code
// extractor only ever has to deal with one body shape.
type HTMLFlattener struct {
	spaceRuns     *regexp.Regexp
	newlineRuns   *regexp.Regexp
	invisibleRune *regexp.Regexp
}

// NewHTMLFlattener creates a new HTML flattener
func NewHTMLFlattener() *HTMLFlattener {
	return &HTMLFlattener{
		spaceRuns:   regexp.MustCompile(`[^\S\n]+`),
		newlineRuns: regexp.MustCompile(`\n{3,}`),
		// zero-width and other invisible characters; left in place they
		// would split a code run in half
		invisibleRune: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}]+`),
	}
}

// Flatten renders HTML as plain text, one line per block element.
func (f *HTMLFlattener) Flatten(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, td").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = f.invisibleRune.ReplaceAllString(text, "")
	text = f.spaceRuns.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	text = strings.Join(lines, "\n")
	text = f.newlineRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
