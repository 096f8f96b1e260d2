package model

import (
	"errors"
	"strings"
)

// ErrUnknownOperation is returned when an operation is not one of the known kinds.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation names a per-block pixel transform.
type Operation string

// Known operations, as they appear on the wire.
const (
	EdgeDetection  Operation = "edge_detection"
	ColorInversion Operation = "color_inversion"
	Blur           Operation = "blur"
	Erosion        Operation = "erosion"
	Dilation       Operation = "dilation"
)

// legacy spellings still produced by older clients.
var aliases = map[string]Operation{
	"edgedetection":  EdgeDetection,
	"colorinversion": ColorInversion,
	"dilate":         Dilation,
	"erode":          Erosion,
}

// Operations returns all known operations in a stable order.
func Operations() []Operation {
	return []Operation{EdgeDetection, ColorInversion, Blur, Erosion, Dilation}
}

// ParseOperation normalizes a wire value. Unknown values are returned as-is
// so that callers can decide whether to reject them.
func ParseOperation(s string) Operation {
	v := strings.ToLower(strings.TrimSpace(s))
	if op, ok := aliases[v]; ok {
		return op
	}

	op := Operation(v)
	if op.Known() {
		return op
	}

	return Operation(s)
}

// Known reports whether op is one of the supported operations.
func (op Operation) Known() bool {
	switch op {
	case EdgeDetection, ColorInversion, Blur, Erosion, Dilation:
		return true
	default:
		return false
	}
}

// Validate returns ErrUnknownOperation for unsupported operations.
func (op Operation) Validate() error {
	if !op.Known() {
		return ErrUnknownOperation
	}

	return nil
}

func (op Operation) String() string { return string(op) }
