package symbol

import "errors"

// Package error sentinels, following the sentinel-list style of
// cache/cache.go in the teacher repository.
var (
	ErrInvalidEscape = errors.New("invalid escape sequence")
	ErrTooShort      = errors.New("symbol string too short to be complete")
	ErrHeaderOverflow = errors.New("data length exceeds 255 and cannot be encoded in NN")
	ErrDataTooLong    = errors.New("data length exceeds maximum telegram size")
)
