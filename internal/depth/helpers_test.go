package depth

// makeFrame builds a frame where fn supplies the player index and distance
// of every pixel.
func makeFrame(w, h int, fn func(x, y int) (uint8, uint16)) Frame {
	data := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pi, d := fn(x, y)
			i := y*w + x
			data[2*i], data[2*i+1] = EncodeSample(pi, d)
		}
	}
	return Frame{Width: w, Height: h, Data: data}
}

// uniformFrame fills every pixel with the same sample.
func uniformFrame(w, h int, pi uint8, d uint16) Frame {
	return makeFrame(w, h, func(int, int) (uint8, uint16) { return pi, d })
}

// distanceFor returns a distance whose intensity is exactly v.
func distanceFor(v byte) uint16 {
	for d := 0; d <= MaxDepthDistance; d++ {
		if Intensity(uint16(d)) == v {
			return uint16(d)
		}
	}
	panic("no distance for intensity")
}
