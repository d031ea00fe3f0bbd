package crackmnist

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnavailable      = errors.New("variant not available")
	ErrAcquisition      = errors.New("automatic download failed")
	ErrMissingData      = errors.New("dataset not found")
	ErrMetadataKey      = errors.New("metadata key not found")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrClosed           = errors.New("dataset closed")
)

// InvalidParameterError reports a constructor argument outside the
// manifest's allowed set.
type InvalidParameterError struct {
	Param   string
	Value   any
	Allowed any
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%s %v is not available, use one of %v", e.Param, e.Value, e.Allowed)
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

// UnavailableError reports a variant that is not published.
type UnavailableError struct {
	File string
}

func (e *UnavailableError) Error() string {
	return e.File + " is not available on Zenodo. Please contact the authors to get access."
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// AcquisitionError reports a failed download together with the steps for
// fetching the file by hand.
type AcquisitionError struct {
	File     string
	Homepage string
	URL      string
	MD5      string
	Root     string
	Err      error
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "automatic download of %s failed: %v\n", e.File, e.Err)
	fmt.Fprintf(&b, "Please download %s manually.\n", e.File)
	fmt.Fprintf(&b, "  1. [Optional] Check your network connection: go to %s and find the Zenodo repository\n", e.Homepage)
	fmt.Fprintf(&b, "  2. Download the file from the Zenodo repository or its data link: %s\n", e.URL)
	fmt.Fprintf(&b, "  3. [Optional] Verify the MD5: %s\n", e.MD5)
	fmt.Fprintf(&b, "  4. Put the file under your CrackMNIST root folder: %s", e.Root)
	return b.String()
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisition }

// IndexError reports a sample index outside [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Len)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndexOutOfRange }

// MetadataKeyError reports a sample whose experiment cannot be resolved:
// either the experiment id has no name, or the name has no metadata record.
type MetadataKeyError struct {
	Name string
	// ID is set when the experiment id itself is out of range.
	ID    int64
	BadID bool
}

func (e *MetadataKeyError) Error() string {
	if e.BadID {
		return fmt.Sprintf("experiment id %d has no experiment name", e.ID)
	}
	return fmt.Sprintf("experiment %q not in metadata", e.Name)
}

func (e *MetadataKeyError) Is(target error) bool { return target == ErrMetadataKey }
