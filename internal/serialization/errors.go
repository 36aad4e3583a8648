package serialization

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrInvalidMagic       = errors.New("serialization: not a .born file")
	ErrUnsupportedVersion = errors.New("serialization: unsupported .born format version")
	ErrHeaderTooLarge     = errors.New("serialization: header exceeds size limit")
	ErrInvalidHeader      = errors.New("serialization: invalid header")
	ErrChecksumMismatch   = errors.New("serialization: checksum mismatch, file may be corrupted")
)

// ValidationError describes a header that fails validation. Type is a
// short machine-readable tag such as "offset_overlap" or "invalid_name";
// Tensor2 is only set for overlaps. Every ValidationError matches
// ErrInvalidHeader under errors.Is.
type ValidationError struct {
	Type    string
	Tensor  string
	Tensor2 string
	Details string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Type)
	switch {
	case e.Tensor2 != "":
		b.WriteString(": tensors " + strconv.Quote(e.Tensor) + " and " + strconv.Quote(e.Tensor2))
	case e.Tensor != "":
		b.WriteString(": tensor " + strconv.Quote(e.Tensor))
	}
	if e.Details != "" {
		b.WriteString(": " + e.Details)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrInvalidHeader }
