// Package zipp is a structural codec for the ZIP container format.
//
// The root package carries the entry model ([FileHeader]), the compression
// method registry, and the little-endian primitives shared by the codec
// packages:
//
//   - [github.com/zippkg/zipp/cd] reads archives through their central
//     directory on seekable media (files, buffers, ranged S3 reads).
//   - [github.com/zippkg/zipp/scan] reads archives sequentially from an
//     io.Reader, local file header by local file header.
//   - [github.com/zippkg/zipp/zipw] writes archives to streaming or seekable
//     sinks, promoting to ZIP64 fields as needed.
//   - [github.com/zippkg/zipp/extra] models the per-entry extra-field chain.
//   - [github.com/zippkg/zipp/zipenc] negotiates how entry names and comments
//     are encoded as bytes.
//
// Compression and decompression are pluggable byte-stream transforms selected
// by method code; see RegisterCompressor and RegisterDecompressor. The codec
// does not repair corrupt archives and does not support split/multi-volume
// archives.
package zipp
