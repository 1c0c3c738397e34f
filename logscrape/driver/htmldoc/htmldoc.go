// Package htmldoc exposes a static HTML document through the driver.Element
// surface. Drivers without a live DOM (HTTP replay, test doubles) render
// markup, parse it here and answer selector queries with goquery.
package htmldoc

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
)

// Document is a parsed HTML tree.
type Document struct {
	doc *goquery.Document
}

// Parse reads and parses an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{doc: goquery.NewDocumentFromNode(root)}, nil
}

// ParseString is Parse for in-memory markup.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Selection returns the root selection for callers that need to edit the tree.
func (d *Document) Selection() *goquery.Selection {
	return d.doc.Selection
}

// FindAll returns elements matching a CSS selector in document order.
// An invalid selector matches nothing.
func (d *Document) FindAll(selector string) []driver.Element {
	return Wrap(d.doc.Find(selector))
}

// HTML serialises the whole document.
func (d *Document) HTML() (string, error) {
	return d.doc.Html()
}

// Wrap converts every node of a selection into a driver.Element.
func Wrap(sel *goquery.Selection) []driver.Element {
	out := make([]driver.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Element{sel: s})
	})
	return out
}

// Element is a single node of a Document.
type Element struct {
	sel *goquery.Selection
}

func (e Element) Attribute(name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e Element) Text() (string, error) {
	return e.sel.Text(), nil
}

func (e Element) Find(selector string) (driver.Element, error) {
	m := e.sel.Find(selector).First()
	if m.Length() == 0 {
		return nil, fmt.Errorf("htmldoc: %q: %w", selector, driver.ErrNoElement)
	}
	return Element{sel: m}, nil
}

// OuterHTML serialises the element including its own tag.
func (e Element) OuterHTML() (string, error) {
	return goquery.OuterHtml(e.sel)
}
