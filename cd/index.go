package cd

import (
	"errors"
	"iter"

	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/zipenc"
)

// Index is a fully materialised central directory: every entry in archive
// order plus a name lookup table.
//
// Duplicate names are legal in the format and preserved here; Lookup returns
// the first occurrence, LookupAll every one in archive order.
type Index struct {
	// EOCD is the resolved end-of-central-directory record.
	EOCD EOCDRecord

	// Warn is non-nil when the directory was truncated: the entries that
	// were recovered are still in the index, and Warn carries the
	// [zipp.TruncatedDirectoryError] describing the shortfall.
	Warn error

	entries []*Entry
	byName  map[string][]*Entry
}

// NewIndex drains the iterator returned by Scan, ScanFromReaderAt or
// ScanFromS3 into an Index.
//
// A truncated directory is not an error here: the partial index is returned
// with [Index.Warn] set. Any other iteration error fails the build.
func NewIndex(r EOCDRecord, entries iter.Seq2[*Entry, error]) (*Index, error) {
	idx := &Index{EOCD: r, byName: make(map[string][]*Entry)}

	for e, err := range entries {
		if err != nil {
			var te *zipp.TruncatedDirectoryError
			if errors.As(err, &te) {
				idx.Warn = err
				break
			}
			return nil, err
		}

		idx.entries = append(idx.entries, e)
		idx.byName[e.Name] = append(idx.byName[e.Name], e)
	}

	return idx, nil
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns every entry in archive order. The slice is owned by the
// index and must not be modified.
func (idx *Index) Entries() []*Entry {
	return idx.entries
}

// Lookup returns the first entry with the given decoded name.
func (idx *Index) Lookup(name string) (*Entry, bool) {
	if es := idx.byName[name]; len(es) > 0 {
		return es[0], true
	}
	return nil, false
}

// LookupAll returns every entry with the given decoded name, in archive
// order.
func (idx *Index) LookupAll(name string) []*Entry {
	return idx.byName[name]
}

// Comment returns the archive comment decoded as UTF-8, with invalid
// sequences replaced.
func (idx *Index) Comment() string {
	return zipenc.UTF8.Decode(idx.EOCD.Comment)
}
