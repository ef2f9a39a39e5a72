package depth

import (
	"errors"
	"fmt"
)

// Usable sensor range in millimetres. Distances below MinDepthDistance map
// to the brightest intensity, distances at or beyond MaxDepthDistance to 0.
const (
	MinDepthDistance = 850
	MaxDepthDistance = 4000

	depthDistanceOffset = MaxDepthDistance - MinDepthDistance
	bytesPerSample      = 2
)

// ErrMalformedFrame is returned when a frame's byte length does not match
// its declared resolution. The frame is discarded; the pipeline continues.
var ErrMalformedFrame = errors.New("malformed depth frame")

// Frame is one raw depth image: Width*Height packed samples, two bytes
// per pixel in row-major order.
type Frame struct {
	Width  int
	Height int
	Data   []byte
	// Sequence is assigned by the source and only used for logging.
	Sequence uint64
}

// Pixels returns the number of samples the frame should carry.
func (f Frame) Pixels() int {
	return f.Width * f.Height
}

// Validate checks the frame length against its resolution.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: invalid resolution %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if want := f.Pixels() * bytesPerSample; len(f.Data) != want {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d", ErrMalformedFrame, len(f.Data), want, f.Width, f.Height)
	}
	return nil
}

// Sample is a decoded depth pixel. PlayerIndex 0 means no tracked body.
type Sample struct {
	PlayerIndex uint8
	Distance    uint16
}

// DecodeSample unpacks one pixel from its two raw bytes.
func DecodeSample(b1, b2 byte) Sample {
	return Sample{
		PlayerIndex: PlayerIndex(b1),
		Distance:    uint16(b1>>3) | uint16(b2)<<5,
	}
}

// PlayerIndex extracts the 3-bit body index from the first sample byte.
func PlayerIndex(b1 byte) uint8 {
	return b1 & 0x07
}

// Decode unpacks every sample of f into dst, reusing its capacity.
func Decode(f Frame, dst []Sample) ([]Sample, error) {
	if err := f.Validate(); err != nil {
		return dst[:0], err
	}
	n := f.Pixels()
	if cap(dst) < n {
		dst = make([]Sample, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = DecodeSample(f.Data[2*i], f.Data[2*i+1])
	}
	return dst, nil
}

// Intensity maps a distance in millimetres onto a 0-255 grayscale value,
// brighter meaning closer. The mapping is monotonically non-increasing.
func Intensity(distance uint16) byte {
	d := float64(distance) - MinDepthDistance
	if d < 0 {
		d = 0
	}
	v := 255 - 255*d/depthDistanceOffset
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(v)
}

// IntensityGrid is a Width*Height byte grid of normalized depth.
type IntensityGrid struct {
	Width  int
	Height int
	Pix    []byte
}

// NewIntensityGrid allocates a zeroed grid.
func NewIntensityGrid(width, height int) *IntensityGrid {
	return &IntensityGrid{Width: width, Height: height, Pix: make([]byte, width*height)}
}

// Clone returns a deep copy that is safe to retain across frames.
func (g *IntensityGrid) Clone() *IntensityGrid {
	if g == nil {
		return nil
	}
	c := &IntensityGrid{Width: g.Width, Height: g.Height, Pix: make([]byte, len(g.Pix))}
	copy(c.Pix, g.Pix)
	return c
}

// At returns the intensity at (x, y).
func (g *IntensityGrid) At(x, y int) byte {
	return g.Pix[y*g.Width+x]
}

func (g *IntensityGrid) resize(width, height int) {
	g.Width, g.Height = width, height
	if cap(g.Pix) < width*height {
		g.Pix = make([]byte, width*height)
	}
	g.Pix = g.Pix[:width*height]
}

// IntensityMap decodes f straight into dst's intensity values.
func IntensityMap(f Frame, dst *IntensityGrid) error {
	if err := f.Validate(); err != nil {
		return err
	}
	dst.resize(f.Width, f.Height)
	for i := range dst.Pix {
		dst.Pix[i] = Intensity(DecodeSample(f.Data[2*i], f.Data[2*i+1]).Distance)
	}
	return nil
}

// EncodeSample packs a player index and distance into the raw two-byte
// representation. It is the inverse of DecodeSample for distances below
// 1<<13 and is used by synthetic sources and tests.
func EncodeSample(playerIndex uint8, distance uint16) (byte, byte) {
	b1 := byte(distance<<3) | (playerIndex & 0x07)
	b2 := byte(distance >> 5)
	return b1, b2
}
