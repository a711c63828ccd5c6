package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
)

// Fallback and minimum sizes in CSS pixels
const (
	CollapsedWidth     = 72
	CollapsedHeight    = 72
	CollapsedMinWidth  = 64
	CollapsedMinHeight = 64
	ExpandedWidth      = 400
	ExpandedHeight     = 640
	ExpandedMinWidth   = 320
	ExpandedMinHeight  = 400
)

const (
	ChatBoxShadow     = "0 24px 70px rgba(15,23,42,0.35)"
	LauncherBoxShadow = "0 18px 45px rgba(37,99,235,0.35)"
)

// Style is the container's inline style
type Style map[string]string

func (s Style) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s: %s;", k, s[k])
	}
	return b.String()
}

func (s Style) clone() Style {
	out := make(Style, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func containerStyle() Style {
	return Style{
		"position":       "fixed",
		"bottom":         "24px",
		"right":          "24px",
		"z-index":        "2147483000",
		"display":        "none",
		"pointer-events": "none",
		"width":          px(CollapsedWidth),
		"height":         px(CollapsedHeight),
		"max-width":      "calc(100vw - 48px)",
		"max-height":     "calc(100vh - 48px)",
		"background":     "transparent",
	}
}

func frameStyle() Style {
	return Style{
		"width":         "100%",
		"height":        "100%",
		"border":        "0",
		"border-radius": "inherit",
		"box-shadow":    "none",
		"background":    "transparent",
	}
}

// clamp returns minimum for absent or non-positive values, otherwise the
// larger of v and minimum
func clamp(v *float64, minimum float64) float64 {
	if v == nil || *v <= 0 {
		return minimum
	}
	return max(*v, minimum)
}

// size computes the container box for a mode and the last reported dimensions
func size(mode protocol.Mode, measured *protocol.Dimensions) (width, height float64) {
	fallbackW, fallbackH := float64(CollapsedWidth), float64(CollapsedHeight)
	minW, minH := float64(CollapsedMinWidth), float64(CollapsedMinHeight)
	if mode == protocol.ModeChat {
		fallbackW, fallbackH = ExpandedWidth, ExpandedHeight
		minW, minH = ExpandedMinWidth, ExpandedMinHeight
	}

	width = clamp(&fallbackW, minW)
	height = clamp(&fallbackH, minH)
	if measured != nil {
		if measured.Width != nil {
			width = clamp(measured.Width, minW)
		}
		if measured.Height != nil {
			height = clamp(measured.Height, minH)
		}
	}
	return width, height
}

// applyMode sets the mode-dependent shape of the container
func applyMode(s Style, mode protocol.Mode) {
	switch mode {
	case protocol.ModeChat:
		s["border-radius"] = "20px"
		s["box-shadow"] = ChatBoxShadow
		s["overflow"] = "hidden"
	case protocol.ModeLauncher:
		s["border-radius"] = "9999px"
		s["box-shadow"] = LauncherBoxShadow
		s["overflow"] = "visible"
	default:
		s["border-radius"] = "9999px"
		s["box-shadow"] = "none"
		s["overflow"] = "hidden"
	}
}

func px(v float64) string {
	return fmt.Sprintf("%gpx", v)
}
