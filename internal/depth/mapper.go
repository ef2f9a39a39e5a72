package depth

// DepthPoint is a pixel coordinate in depth-image space.
type DepthPoint struct {
	X, Y int
}

// ColorPoint is a pixel coordinate in the co-registered colour image.
type ColorPoint struct {
	X, Y int
}

// CoordinateMapper projects depth pixels into the colour image. Real
// implementations wrap the sensor's calibration API; the core only
// consumes it.
type CoordinateMapper interface {
	DepthToColor(p DepthPoint) ColorPoint
}

// LinearMapper scales depth coordinates to colour coordinates by the
// resolution ratio. It ignores lens offsets and exists for synthetic and
// replayed streams, where no sensor calibration is available.
type LinearMapper struct {
	DepthWidth, DepthHeight int
	ColorWidth, ColorHeight int
}

// DepthToColor implements CoordinateMapper.
func (m LinearMapper) DepthToColor(p DepthPoint) ColorPoint {
	if m.DepthWidth <= 0 || m.DepthHeight <= 0 {
		return ColorPoint{X: p.X, Y: p.Y}
	}
	return ColorPoint{
		X: p.X * m.ColorWidth / m.DepthWidth,
		Y: p.Y * m.ColorHeight / m.DepthHeight,
	}
}

// ColorImage is a packed colour frame with BytesPerPixel channels per
// pixel (BGRA from the sensor). Only the first three channels are masked.
type ColorImage struct {
	Width         int
	Height        int
	BytesPerPixel int
	Pix           []byte
}

// NewColorImage allocates a zeroed colour image.
func NewColorImage(width, height, bpp int) *ColorImage {
	return &ColorImage{Width: width, Height: height, BytesPerPixel: bpp, Pix: make([]byte, width*height*bpp)}
}

// Clone returns a deep copy, or nil for a nil image.
func (c *ColorImage) Clone() *ColorImage {
	if c == nil {
		return nil
	}
	out := *c
	out.Pix = append([]byte(nil), c.Pix...)
	return &out
}

// blank zeroes the colour channels of the pixel at (x, y) and its
// horizontal neighbours. Out-of-range pixels are skipped.
func (c *ColorImage) blank(x, y int) {
	if y < 0 || y >= c.Height {
		return
	}
	channels := 3
	if c.BytesPerPixel < channels {
		channels = c.BytesPerPixel
	}
	for dx := -1; dx <= 1; dx++ {
		px := x + dx
		if px < 0 || px >= c.Width {
			continue
		}
		off := (y*c.Width + px) * c.BytesPerPixel
		for k := 0; k < channels; k++ {
			c.Pix[off+k] = 0
		}
	}
}
