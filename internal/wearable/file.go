package wearable

import "os"

// FileReader reads the state from a file on every call. A missing or
// unreadable file reads as Unknown.
type FileReader struct {
	Path string
}

// State implements Reader.
func (r FileReader) State() State {
	b, err := os.ReadFile(r.Path)
	if err != nil {
		return Unknown
	}
	return ParseState(b)
}
