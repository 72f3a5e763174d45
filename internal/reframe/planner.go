package reframe

import "clipforge/internal/vision"

// Planner smooths a crop center toward successive targets and emits
// constrained crop boxes. The center starts at frame center and is clamped so
// the crop box never leaves the source frame.
type Planner struct {
	srcWidth   int
	srcHeight  int
	cropWidth  int
	cropHeight int
	alpha      float64
	centerX    int
	centerY    int
}

// NewPlanner sizes the crop window for the output aspect against the source
// dimensions. Alpha is the EMA smoothing factor in (0, 1]; higher tracks
// faster.
func NewPlanner(srcWidth, srcHeight, outWidth, outHeight int, alpha float64) *Planner {
	cropWidth := srcHeight * outWidth / outHeight
	if cropWidth > srcWidth {
		cropWidth = srcWidth
	}
	return &Planner{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		cropWidth:  cropWidth,
		cropHeight: srcHeight,
		alpha:      alpha,
		centerX:    srcWidth / 2,
		centerY:    srcHeight / 2,
	}
}

// Step moves the smoothed center toward the target and returns the crop box.
// Without a target the center holds its last position.
func (p *Planner) Step(targetX, targetY int, hasTarget bool) vision.Rect {
	if hasTarget {
		p.centerX = int(p.alpha*float64(targetX) + (1-p.alpha)*float64(p.centerX))
		p.centerY = int(p.alpha*float64(targetY) + (1-p.alpha)*float64(p.centerY))
	}
	return p.constrainedBox()
}

// CenterCrop returns the static middle crop used when no faces are available.
func (p *Planner) CenterCrop() vision.Rect {
	p.centerX = p.srcWidth / 2
	p.centerY = p.srcHeight / 2
	return p.constrainedBox()
}

// CropSize returns the crop window dimensions.
func (p *Planner) CropSize() (int, int) {
	return p.cropWidth, p.cropHeight
}

func (p *Planner) constrainedBox() vision.Rect {
	halfW := p.cropWidth / 2
	halfH := p.cropHeight / 2

	if p.centerX < halfW {
		p.centerX = halfW
	}
	if limit := p.srcWidth - halfW; p.centerX > limit {
		p.centerX = limit
	}
	if p.centerY < halfH {
		p.centerY = halfH
	}
	if limit := p.srcHeight - halfH; p.centerY > limit {
		p.centerY = limit
	}

	return vision.Rect{
		X:      p.centerX - halfW,
		Y:      p.centerY - halfH,
		Width:  p.cropWidth,
		Height: p.cropHeight,
	}
}
