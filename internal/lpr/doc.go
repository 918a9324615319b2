// Package lpr holds the value types exchanged between the capture loop, the
// inference adapters and the decision pipeline: frames, detections,
// recognitions and the outbound event payload. It also owns plate text
// normalization so every component agrees on the plate string used as a
// cache key.
package lpr
