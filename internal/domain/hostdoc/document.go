// Package hostdoc models the embedding page's document as the loader sees it:
// a parsed HTML tree, the page URL, and a ready state that gates work until
// the document has finished loading.
package hostdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// MaxDocumentSize limits host page input to 10MB
const MaxDocumentSize = 10 * 1024 * 1024

// ErrNotHTML is returned when the page content is binary
var ErrNotHTML = errors.New("document is not html")

// ReadyState mirrors document.readyState
type ReadyState string

const (
	StateLoading  ReadyState = "loading"
	StateComplete ReadyState = "complete"
)

// Document is the host page. Not safe for concurrent use.
type Document struct {
	root    *html.Node
	url     *url.URL
	state   ReadyState
	pending []func()
	attrs   map[string]string
}

// New wraps an already parsed tree. The document starts in the loading state.
func New(root *html.Node, pageURL *url.URL) *Document {
	if pageURL == nil {
		pageURL = &url.URL{Path: "/"}
	}
	return &Document{
		root:  root,
		url:   pageURL,
		state: StateLoading,
		attrs: make(map[string]string),
	}
}

// Parse reads a host page, converting it to UTF-8 first. contentType is the
// HTTP Content-Type header and may be empty.
func Parse(r io.Reader, contentType string, pageURL *url.URL) (*Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("document exceeds %d bytes", MaxDocumentSize)
	}

	if !isTextual(data) {
		return nil, ErrNotHTML
	}

	if contentType == "" || !strings.Contains(strings.ToLower(contentType), "charset") {
		contentType = "text/html; charset=" + detectCharset(data)
	}

	reader, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		reader = bytes.NewReader(data)
	}

	root, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return New(root, pageURL), nil
}

// ParseString parses a UTF-8 page
func ParseString(src string, pageURL string) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}
	return Parse(strings.NewReader(src), "text/html; charset=utf-8", u)
}

func isTextual(data []byte) bool {
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") || mt.Is("text/html") {
			return true
		}
	}
	return false
}

func detectCharset(data []byte) string {
	result, err := chardet.NewHtmlDetector().DetectBest(data)
	if err != nil || result == nil || result.Confidence < 50 {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	return d.root
}

// URL returns the page URL
func (d *Document) URL() *url.URL {
	return d.url
}

// ReadyState reports whether the document finished loading
func (d *Document) ReadyState() ReadyState {
	return d.state
}

// WhenReady runs fn now if the document is complete, otherwise once it completes
func (d *Document) WhenReady(fn func()) {
	if fn == nil {
		return
	}
	if d.state == StateComplete {
		fn()
		return
	}
	d.pending = append(d.pending, fn)
}

// MarkLoaded completes loading and runs deferred callbacks in order, once
func (d *Document) MarkLoaded() {
	if d.state == StateComplete {
		return
	}
	d.state = StateComplete
	pending := d.pending
	d.pending = nil
	for _, fn := range pending {
		fn()
	}
}

// Selection returns a goquery view over the whole document
func (d *Document) Selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(d.root).Selection
}

// QueryFirst returns the first element matching a CSS selector
func (d *Document) QueryFirst(selector string) *html.Node {
	sel := d.Selection().Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel.Get(0)
}

// ElementByID returns the element with the given id attribute
func (d *Document) ElementByID(id string) *html.Node {
	var found *html.Node
	d.Selection().Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = s.Get(0)
			return false
		}
		return true
	})
	return found
}

// Contains reports whether n is still attached to this document
func (d *Document) Contains(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

// Body returns the body element, or nil
func (d *Document) Body() *html.Node {
	return findAtom(d.root, atom.Body)
}

// Global returns a page-level flag previously recorded with SetGlobal
func (d *Document) Global(name string) (string, bool) {
	v, ok := d.attrs[name]
	return v, ok
}

// SetGlobal records a page-level flag such as a window global
func (d *Document) SetGlobal(name, value string) {
	d.attrs[name] = value
}

// Render writes the current tree as HTML
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the tree, or returns "" on failure
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findAtom(c, a); found != nil {
			return found
		}
	}
	return nil
}

// Text returns the text content of n, like Node.textContent
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return goquery.NewDocumentFromNode(n).Text()
}

// SetText replaces every child of n with a single text node holding text
// verbatim. Markup in text is not interpreted.
func SetText(n *html.Node, text string) {
	if n == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Attr returns the value of attribute key on n
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces attribute key on n
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// CurrentScript finds the script element that loaded the embed. It prefers a
// script whose src path ends in suffix and falls back to the last script in
// the document.
func (d *Document) CurrentScript(suffix string) *html.Node {
	var last, match *html.Node
	d.Selection().Find("script").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		last = n
		src, ok := s.Attr("src")
		if !ok || suffix == "" {
			return
		}
		if u, err := url.Parse(src); err == nil && strings.HasSuffix(u.Path, suffix) {
			match = n
		}
	})
	if match != nil {
		return match
	}
	return last
}

// InlineScripts returns the source of every script element without a src
func (d *Document) InlineScripts() []string {
	var out []string
	d.Selection().Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		if typ, ok := s.Attr("type"); ok && typ != "" && typ != "text/javascript" && typ != "module" {
			return
		}
		if src := strings.TrimSpace(s.Text()); src != "" {
			out = append(out, src)
		}
	})
	return out
}

// Resolve resolves ref against the page URL
func (d *Document) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return d.url.ResolveReference(u), nil
}
