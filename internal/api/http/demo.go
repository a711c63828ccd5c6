package http

import (
	"errors"
	"fmt"
	"html"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/apperr"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// DemoPattern selects which files under the demo directory are served
const DemoPattern = "**/*.{html,htm}"

// BuiltinDemoPage is served as index.html when the demo directory has none
const BuiltinDemoPage = "index.html"

// DemoPages serves host pages that embed the widget, for trying the loader
// against real markup
type DemoPages struct {
	root    string
	pages   map[string]string
	builtin []byte
}

// NewDemoPages indexes root. A missing root leaves only the built-in page.
func NewDemoPages(root, publicURL, token string) (*DemoPages, error) {
	d := &DemoPages{
		root:    root,
		pages:   make(map[string]string),
		builtin: []byte(builtinPage(publicURL, token)),
	}
	if root == "" {
		return d, nil
	}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}

	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(DemoPattern, rel); !ok {
			return nil
		}
		mu.Lock()
		d.pages[rel] = p
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index demo pages: %w", err)
	}
	return d, nil
}

// Names lists the servable pages in order
func (d *DemoPages) Names() []string {
	names := make([]string, 0, len(d.pages)+1)
	for name := range d.pages {
		names = append(names, name)
	}
	if _, ok := d.pages[BuiltinDemoPage]; !ok {
		names = append(names, BuiltinDemoPage)
	}
	sort.Strings(names)
	return names
}

// Index handles GET /demo
func (d *DemoPages) Index(c *gin.Context) {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\"><title>Headline Tester demo pages</title></head><body><ul>")
	for _, name := range d.Names() {
		escaped := html.EscapeString(name)
		fmt.Fprintf(&b, "<li><a href=\"/demo/%s\">%s</a></li>", escaped, escaped)
	}
	b.WriteString("</ul></body></html>")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}

// Page handles GET /demo/*page
func (d *DemoPages) Page(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("page"), "/")
	if name == "" {
		name = BuiltinDemoPage
	}

	data, err := d.Read(name)
	if err != nil {
		e := apperr.New(apperr.NotFound, "Demo page not found.")
		c.JSON(e.Status(), e.Body())
		return
	}

	contentType := "text/html; charset=utf-8"
	if mt := mimetype.Detect(data); mt.Is("text/html") {
		contentType = mt.String()
	}
	c.Data(http.StatusOK, contentType, data)
}

// Read returns a page's bytes
func (d *DemoPages) Read(name string) ([]byte, error) {
	if p, ok := d.pages[name]; ok {
		return os.ReadFile(p)
	}
	if name == BuiltinDemoPage {
		return d.builtin, nil
	}
	return nil, fs.ErrNotExist
}

func builtinPage(publicURL, token string) string {
	src := strings.TrimRight(publicURL, "/") + "/widget/embed.js"
	return `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Headline Tester demo</title>
</head>
<body>
<main>
<h1 data-headlinetester-target="headline">Ship landing pages your visitors actually read</h1>
<p>Open the widget, ask for a rewrite and apply it to see the headline change in place.</p>
</main>
<script src="` + html.EscapeString(src) + `" data-token="` + html.EscapeString(token) + `" async></script>
</body>
</html>
`
}
