package calendar

// DefaultMargin keeps the popover off the viewport edge.
const DefaultMargin = 10

// Rect is an axis-aligned rectangle. X grows right, Y grows down.
type Rect struct {
	X, Y, W, H int
}

// Right returns the x coordinate just past the rectangle.
func (r Rect) Right() int { return r.X + r.W }

// Bottom returns the y coordinate just past the rectangle.
func (r Rect) Bottom() int { return r.Y + r.H }

// Size is a width and height.
type Size struct {
	W, H int
}

// Bounds limits the preferred popover size.
type Bounds struct {
	MinW, MaxW int
	MinH, MaxH int
}

// PixelBounds are the limits used by the web client.
var PixelBounds = Bounds{MinW: 320, MaxW: 400, MinH: 300, MaxH: 450}

// Anchor is the popover corner pinned to the cell.
type Anchor int

const (
	AnchorTopLeft Anchor = iota
	AnchorTopRight
	AnchorBottomLeft
	AnchorBottomRight
)

func (a Anchor) String() string {
	switch a {
	case AnchorTopLeft:
		return "top-left"
	case AnchorTopRight:
		return "top-right"
	case AnchorBottomLeft:
		return "bottom-left"
	case AnchorBottomRight:
		return "bottom-right"
	default:
		return "unknown"
	}
}

// Placement is where the popover goes.
type Placement struct {
	Rect   Rect
	Anchor Anchor
}

// ContentSize derives the preferred popover size from the cell size.
func ContentSize(cell Rect, b Bounds) Size {
	return Size{
		W: clamp(cell.W*3/2, b.MinW, b.MaxW),
		H: clamp(cell.H*3, b.MinH, b.MaxH),
	}
}

// PlacePopover positions a popover of the given size next to cell. It opens
// down and to the right from the cell's top-left corner, flipping left or up
// when there is not enough room, and never leaves the viewport minus margin.
func PlacePopover(cell, viewport Rect, content Size, margin int) Placement {
	w, h := content.W, content.H
	maxW := viewport.W - 2*margin
	if maxW < 0 {
		maxW = 0
	}
	if w > maxW {
		w = maxW
	}
	maxH := viewport.H - 2*margin
	if maxH < 0 {
		maxH = 0
	}
	if h > maxH {
		h = maxH
	}

	right, down := true, true
	x := cell.X
	if viewport.Right()-cell.X < w+margin {
		right = false
		x = cell.Right() - w
	}

	y := cell.Y
	below := viewport.Bottom() - margin - cell.Y
	above := cell.Bottom() - (viewport.Y + margin)
	if below < h {
		if above >= h {
			down = false
			y = cell.Bottom() - h
		} else if above > below {
			down = false
			h = above
			y = cell.Bottom() - h
		} else {
			h = below
		}
	}
	if h < 0 {
		h = 0
	}

	x = clamp(x, viewport.X+margin, viewport.Right()-margin-w)
	y = clamp(y, viewport.Y+margin, viewport.Bottom()-margin-h)

	anchor := AnchorTopLeft
	switch {
	case right && !down:
		anchor = AnchorBottomLeft
	case !right && down:
		anchor = AnchorTopRight
	case !right && !down:
		anchor = AnchorBottomRight
	}
	return Placement{Rect: Rect{X: x, Y: y, W: w, H: h}, Anchor: anchor}
}

// clamp bounds v to [lo, hi]; lo wins when the range is empty.
func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
