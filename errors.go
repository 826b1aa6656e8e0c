package cairn

import (
	"errors"

	"github.com/cairnkv/cairn/internal/filter"
	"github.com/cairnkv/cairn/internal/sstable"
)

// Common errors returned by store operations.
var (
	// ErrClosed is returned when an operation is invoked before Open or
	// after Close.
	ErrClosed = errors.New("cairn: store is closed")

	// ErrNotFound is returned by Get when the key is absent or deleted.
	ErrNotFound = errors.New("cairn: key not found")

	// ErrInvalidRange is returned by Scan when lo > hi.
	ErrInvalidRange = errors.New("cairn: invalid scan range")

	// ErrReservedValue is returned by Put for the value reserved as the
	// deletion marker.
	ErrReservedValue = errors.New("cairn: value is reserved for deletion markers")

	// ErrIncompatibleLevels reports an attempt to merge runs of different
	// levels. It indicates a programming bug in the engine.
	ErrIncompatibleLevels = errors.New("cairn: cannot merge runs of different levels")

	// ErrInvalidOptions is returned by Open for unusable options.
	ErrInvalidOptions = errors.New("cairn: invalid options")
)

// ErrCorruptPage is returned when a run page fails to parse.
var ErrCorruptPage = sstable.ErrCorruptPage

// ErrIncompatibleFilter is returned when Bloom filters with different
// parameters are combined.
var ErrIncompatibleFilter = filter.ErrIncompatible
