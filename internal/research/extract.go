package research

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"rsc.io/pdf"
)

var errUnsupportedContentType = errors.New("unsupported content type")

// extractLimits caps the text a single page may contribute to the
// evidence pool. Values come from ReaderConfig.
type extractLimits struct {
	textRunes  int
	titleRunes int
}

func extractDocumentText(contentType string, body []byte, limits extractLimits) (title, text string, err error) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, parseErr := mime.ParseMediaType(mediaType); parseErr == nil {
		mediaType = parsed
	}

	switch mediaType {
	case "text/html", "application/xhtml+xml":
		title, text, err = htmlToText(body)
	case "text/plain", "text/markdown", "text/csv":
		text = collapseWhitespace(string(body))
	case "application/json":
		text, err = jsonToText(body)
	case "application/pdf":
		text, err = pdfToText(body, limits.textRunes)
	default:
		if strings.HasPrefix(mediaType, "text/") {
			text = collapseWhitespace(string(body))
			break
		}
		return "", "", errUnsupportedContentType
	}
	if err != nil {
		return "", "", err
	}
	title = trimToRunes(strings.TrimSpace(title), limits.titleRunes)
	text = trimToRunes(collapseWhitespace(text), limits.textRunes)
	return title, text, nil
}

func jsonToText(data []byte) (string, error) {
	if !json.Valid(data) {
		return collapseWhitespace(string(data)), nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return "", err
	}
	return collapseWhitespace(pretty.String()), nil
}

// pdfToText stops pulling pages once the rune budget is met; anything
// past it would be trimmed away anyway.
func pdfToText(data []byte, maxRunes int) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	runeCount := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		for _, item := range page.Content().Text {
			chunk := strings.TrimSpace(item.S)
			if chunk == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteByte('\n')
				runeCount++
			}
			builder.WriteString(chunk)
			runeCount += utf8.RuneCountInString(chunk)
			if maxRunes > 0 && runeCount >= maxRunes {
				return collapseWhitespace(builder.String()), nil
			}
		}
	}

	return collapseWhitespace(builder.String()), nil
}

// htmlToText collects the page title and visible body text in a single
// traversal, skipping script, style, and similar non-content subtrees.
func htmlToText(data []byte) (title, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	var page htmlPage
	page.walk(doc, false)
	return page.title, collapseWhitespace(page.body.String()), nil
}

type htmlPage struct {
	title string
	body  strings.Builder
}

func (p *htmlPage) walk(node *html.Node, skip bool) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.ElementNode:
		name := strings.ToLower(node.Data)
		if name == "title" {
			if p.title == "" {
				p.title = strings.TrimSpace(nodeText(node))
			}
			return
		}
		switch name {
		case "script", "style", "noscript", "svg", "iframe":
			skip = true
		case "p", "div", "section", "article", "li", "h1", "h2", "h3", "h4", "h5", "h6", "br", "tr":
			if p.body.Len() > 0 {
				p.body.WriteByte('\n')
			}
		}
	case html.TextNode:
		if !skip {
			if trimmed := strings.TrimSpace(node.Data); trimmed != "" {
				p.body.WriteString(trimmed)
				p.body.WriteByte(' ')
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		p.walk(child, skip)
	}
}

func nodeText(node *html.Node) string {
	if node == nil {
		return ""
	}
	if node.Type == html.TextNode {
		return node.Data
	}
	var builder strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		builder.WriteString(nodeText(child))
		builder.WriteByte(' ')
	}
	return builder.String()
}

// collapseWhitespace squeezes runs of whitespace to single spaces and
// drops blank lines, keeping one line per block of content.
func collapseWhitespace(raw string) string {
	normalized := strings.ToValidUTF8(strings.ReplaceAll(raw, "\r\n", "\n"), "")

	var out strings.Builder
	for _, line := range strings.Split(normalized, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(strings.Join(fields, " "))
	}
	return out.String()
}
