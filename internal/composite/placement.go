package composite

import (
	"fmt"
	"strconv"
	"strings"

	"cartoonify/internal/domain"
)

// Anchor selects how an overlay offset is derived from the canvas size.
type Anchor string

const (
	AnchorCenter   Anchor = "center"
	AnchorTop      Anchor = "top"
	AnchorBottom   Anchor = "bottom"
	AnchorExplicit Anchor = "explicit"
)

// Placement positions an overlay on the base canvas.
type Placement struct {
	Anchor Anchor
	X, Y   int // only used with AnchorExplicit
}

var (
	Center = Placement{Anchor: AnchorCenter}
	Top    = Placement{Anchor: AnchorTop}
	Bottom = Placement{Anchor: AnchorBottom}
)

// At places the overlay's top-left corner at (x, y) verbatim.
func At(x, y int) Placement {
	return Placement{Anchor: AnchorExplicit, X: x, Y: y}
}

// ParsePlacement accepts "center", "top", "bottom" or "x,y". The empty
// string means center.
func ParsePlacement(s string) (Placement, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", string(AnchorCenter):
		return Center, nil
	case string(AnchorTop):
		return Top, nil
	case string(AnchorBottom):
		return Bottom, nil
	default:
		xs, ys, ok := strings.Cut(v, ",")
		if !ok {
			return Placement{}, domain.Errorf(domain.ErrProcessing, "composite.ParsePlacement", "unknown placement %q", s)
		}
		x, errX := strconv.Atoi(strings.TrimSpace(xs))
		y, errY := strconv.Atoi(strings.TrimSpace(ys))
		if errX != nil || errY != nil {
			return Placement{}, domain.Errorf(domain.ErrProcessing, "composite.ParsePlacement", "placement %q is not x,y", s)
		}
		return At(x, y), nil
	}
}

func (p Placement) String() string {
	if p.Anchor == AnchorExplicit {
		return fmt.Sprintf("%d,%d", p.X, p.Y)
	}
	return string(p.Anchor)
}

// offset returns the top-left corner of a w×h overlay on a W×H canvas.
func (p Placement) offset(canvasW, canvasH, w, h int) (int, int) {
	switch p.Anchor {
	case AnchorTop:
		return floorDiv(canvasW-w, 2), canvasH / 4
	case AnchorBottom:
		return floorDiv(canvasW-w, 2), canvasH*3/4 - h
	case AnchorExplicit:
		return p.X, p.Y
	default:
		return floorDiv(canvasW-w, 2), floorDiv(canvasH-h, 2)
	}
}

// floorDiv rounds toward negative infinity so oversized overlays stay
// centred the same way as smaller ones.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
