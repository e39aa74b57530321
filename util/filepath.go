package util

import "path/filepath"

// StemAndExt splits the base name of path into a stem and a possibly compound
// extension: "file.tar.gz" yields "file" and ".tar.gz", which keeps suffixed
// copies natural ("file-1.tar.gz" instead of "file.tar-1.gz").
//
// Each extension segment may be at most 5 characters; a longer trailing
// segment such as ".jfif-tbnl" is treated as part of the stem.
func StemAndExt(path string) (stem, ext string) {
	n := len(path) - 1
	for i, j := n, max(0, n-6); i >= j; i-- {
		switch path[i] {
		case '\\', '/':
			stem = path[i+1:]
			return
		case '.':
			ext = path[i:] + ext
			path = path[:i]
			n = len(path)
			i, j = n, max(0, n-6)
			continue
		}
	}

	stem = filepath.Base(path)
	return
}
