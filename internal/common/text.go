// -----------------------------------------------------------------------
// Text Sanitiser - normalisation applied to all inbound scraped text
// -----------------------------------------------------------------------

package common

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// smartPunctuation folds typographic characters into their ASCII
// equivalents so downstream keyword matching sees one spelling.
var smartPunctuation = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"‚", "'",
	"‛", "'",
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`,
	"‟", `"`,
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	"…", "...",
	"•", "-", // bullet
	" ", " ", // non-breaking space
	" ", " ",
	" ", " ",
	" ", " ",
	"​", "", // zero-width space
	"‌", "",
	"‍", "",
	"﻿", "",
)

var (
	spacesRe        = regexp.MustCompile(`[ \t]+`)
	spacedNewlineRe = regexp.MustCompile(` *\n *`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// SanitizeText normalises a plain-text string: HTML entities are decoded,
// Unicode is NFC-normalised, smart punctuation is folded to ASCII, control
// characters are removed, and whitespace is collapsed. The operation is
// idempotent, so already-clean text passes through unchanged.
func SanitizeText(input string) string {
	if input == "" {
		return ""
	}

	// Decode entities until stable; scraped feeds occasionally
	// double-encode (&amp;amp;).
	text := input
	for {
		decoded := html.UnescapeString(text)
		if decoded == text {
			break
		}
		text = decoded
	}

	text = norm.NFC.String(text)
	text = smartPunctuation.Replace(text)

	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spacesRe.ReplaceAllString(text, " ")
	text = spacedNewlineRe.ReplaceAllString(text, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// SanitizeHTML strips markup from an HTML fragment while preserving
// paragraph and list structure, then applies SanitizeText. Block elements
// become line breaks and list items become "- " bullets, so a job
// description keeps its shape when rendered as plain text.
func SanitizeHTML(input string) string {
	if input == "" {
		return ""
	}
	if !strings.Contains(input, "<") {
		return SanitizeText(input)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		return SanitizeText(input)
	}

	doc.Find("script, style, noscript, iframe, svg").Remove()

	var builder strings.Builder
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	writeTextContent(body, &builder)

	return SanitizeText(builder.String())
}

// writeTextContent walks the node tree emitting text with structural
// newlines for block-level elements.
func writeTextContent(selection *goquery.Selection, builder *strings.Builder) {
	selection.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			builder.WriteString(s.Text())
			return
		}

		switch goquery.NodeName(s) {
		case "br":
			builder.WriteString("\n")
		case "p", "div", "section", "article", "header", "footer",
			"h1", "h2", "h3", "h4", "h5", "h6", "tr", "table":
			builder.WriteString("\n")
			writeTextContent(s, builder)
			builder.WriteString("\n")
		case "ul", "ol":
			builder.WriteString("\n")
			writeTextContent(s, builder)
			builder.WriteString("\n")
		case "li":
			builder.WriteString("\n- ")
			writeTextContent(s, builder)
		case "td", "th":
			writeTextContent(s, builder)
			builder.WriteString(" ")
		default:
			writeTextContent(s, builder)
		}
	})
}

// Truncate shortens a string to at most max runes, appending an ellipsis
// marker when truncation occurred. Used to bound prompt payload sizes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
