package locator

import (
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/hostdoc"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// MarkerAttr designates the preferred mutation target on the host page
const MarkerAttr = "data-headlinetester-target"

// MarkerValue is the value MarkerAttr must carry
const MarkerValue = "headline"

// DefaultSelector is reported when nothing better is known
const DefaultSelector = "h1"

// Strategy finds a headline candidate in a document
type Strategy interface {
	Name() string
	// Locate returns nil when the strategy finds nothing
	Locate(doc *hostdoc.Document) *html.Node
}

// MarkerStrategy finds the element explicitly marked by the page author
type MarkerStrategy struct{}

func (MarkerStrategy) Name() string { return "marker" }

func (MarkerStrategy) Locate(doc *hostdoc.Document) *html.Node {
	return doc.QueryFirst(`[` + MarkerAttr + `="` + MarkerValue + `"]`)
}

// HeadingStrategy falls back to the first h1 in document order
type HeadingStrategy struct{}

func (HeadingStrategy) Name() string { return "heading" }

func (HeadingStrategy) Locate(doc *hostdoc.Document) *html.Node {
	return htmlquery.FindOne(doc.Root(), "//h1")
}

// DefaultStrategies is the fallback chain used when none is configured
func DefaultStrategies() []Strategy {
	return []Strategy{MarkerStrategy{}, HeadingStrategy{}}
}
