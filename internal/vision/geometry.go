package vision

// Rect is a pixel-space bounding box.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the box midpoint.
func (r Rect) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the box area in pixels.
func (r Rect) Area() int {
	return r.Width * r.Height
}

// IOU computes intersection over union of two boxes. Degenerate boxes yield 0.
func IOU(a, b Rect) float64 {
	xi1 := maxInt(a.X, b.X)
	yi1 := maxInt(a.Y, b.Y)
	xi2 := minInt(a.X+a.Width, b.X+b.Width)
	yi2 := minInt(a.Y+a.Height, b.Y+b.Height)

	interArea := maxInt(0, xi2-xi1) * maxInt(0, yi2-yi1)
	unionArea := a.Area() + b.Area() - interArea
	if unionArea == 0 {
		return 0
	}
	return float64(interArea) / float64(unionArea)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
