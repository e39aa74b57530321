package zipp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAnArchive is returned when no end-of-central-directory
	// signature was found within the trailing search window; the input is
	// most likely not a ZIP file.
	ErrNotAnArchive = errors.New("end of central directory not found; most likely not a ZIP file")

	// ErrUnclosedEntry is returned by a writer that is finished or closed
	// while an entry is still open for writing.
	ErrUnclosedEntry = errors.New("archive contains an unclosed entry")

	// ErrChecksum is returned once an entry's stream has been fully
	// consumed and the CRC-32 of the decompressed output did not match the
	// recorded value. Bytes read before the mismatch was detected are
	// still valid to the extent the archive is.
	ErrChecksum = errors.New("crc32 checksum mismatch")

	// ErrEncrypted is returned when opening an entry whose flags declare
	// encryption, which this codec does not implement.
	ErrEncrypted = errors.New("entry is encrypted")

	// ErrMethod is returned when no decompressor is registered for an
	// entry's compression method code.
	ErrMethod = errors.New("unsupported compression method")
)

// MalformedRecordError reports that a fixed-width field could not be read
// because the input was truncated or a signature did not match.
type MalformedRecordError struct {
	// Record names the record being parsed, e.g. "local file header".
	Record string
	// Err is the underlying cause, if any.
	Err error
	// Need and Got are byte counts when the cause was a short read.
	Need, Got int
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s: %v", e.Record, e.Err)
	}
	return fmt.Sprintf("malformed %s: need at least %d bytes, got %d", e.Record, e.Need, e.Got)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// TruncatedDirectoryError reports that the end-of-central-directory record
// declared more entries than could be parsed before the input ran out. It is
// a warning, not a hard failure: entries parsed before the truncation point
// remain valid and are delivered to the caller.
type TruncatedDirectoryError struct {
	// Expected is the record count declared by the end-of-directory
	// record; Parsed is how many entries were actually recovered.
	Expected, Parsed uint64
}

func (e *TruncatedDirectoryError) Error() string {
	return fmt.Sprintf("central directory truncated: expected %d entries, parsed %d", e.Expected, e.Parsed)
}

// DescriptorMismatchError reports that a streaming read could not reconcile
// any data descriptor candidate with the number of bytes actually consumed
// within the configured lookahead.
type DescriptorMismatchError struct {
	// Scanned is the number of payload bytes consumed before giving up.
	Scanned int64
}

func (e *DescriptorMismatchError) Error() string {
	return fmt.Sprintf("no data descriptor matched after %d bytes", e.Scanned)
}
