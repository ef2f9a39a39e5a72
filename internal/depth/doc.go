// Package depth owns the depth half of the posture pipeline.
//
// Responsibilities: decoding packed depth samples, learning the per-pixel
// background envelope, and segmenting live frames into foreground and
// background with a foreground centroid.
// Key types: Frame, Envelope, IntensityGrid, Result, Processor.
//
// Dependency rule: depth never imports skeleton or posture, and no SQL or
// network code is allowed in this package. Persistence goes through the
// EnvelopeStore interface.
package depth
