package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// ParseDisplayName returns the og:title of an HTML page, NFC normalised.
func ParseDisplayName(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	var title string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var property, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "property":
					property = a.Val
				case "content":
					content = a.Val
				}
			}
			if property == "og:title" {
				title = content
				return true
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return norm.NFC.String(strings.TrimSpace(title)), nil
}

func (c *Client) FetchDisplayName(ctx context.Context, pageURL string) (string, error) {
	resp, err := c.request(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("failed to fetch %s: %s", pageURL, resp.Status())
	}
	return ParseDisplayName(resp.Body())
}
