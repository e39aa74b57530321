package zipp

import (
	"io/fs"
	"path"
	"strings"
	"time"
)

// Record signatures, all little-endian on disk.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#Local_file_header.
const (
	SigLocalFileHeader  uint32 = 0x04034b50
	SigDataDescriptor   uint32 = 0x08074b50
	SigCentralDirectory uint32 = 0x02014b50
	SigEOCD             uint32 = 0x06054b50
	SigZip64EOCD        uint32 = 0x06064b50
	SigZip64EOCDLocator uint32 = 0x07064b50
)

// Fixed sizes of the records above, excluding variable-length tails.
const (
	LocalFileHeaderLen  = 30
	DataDescriptorLen   = 16 // with signature, 32-bit sizes
	DataDescriptor64Len = 24 // with signature, 64-bit sizes
	CentralDirectoryLen = 46
	EOCDLen             = 22
	Zip64EOCDLen        = 56
	Zip64LocatorLen     = 20
)

// Sentinel values signalling "actual value lives in the ZIP64 extension".
//
// A field carrying its sentinel is not necessarily ZIP64: the promotion only
// takes effect if a matching 64-bit field exists. Readers therefore resolve
// sentinels against [github.com/zippkg/zipp/extra.Zip64] rather than treating
// the maximum value as special on its own.
const (
	Max16 = 0xffff
	Max32 = 0xffffffff
)

// General-purpose bit flags relevant to this codec.
const (
	// FlagDataDescriptor (bit 3) declares that CRC-32 and sizes were
	// unknown when the local file header was written and follow the
	// payload in a data descriptor record.
	FlagDataDescriptor uint16 = 0x8

	// FlagStrongEncryption (bit 6) marks strong encryption, which this
	// codec does not implement; entries carrying it can be listed but not
	// opened.
	FlagStrongEncryption uint16 = 0x40

	// FlagUTF8 (bit 11) declares that the name and comment bytes are
	// UTF-8 encoded.
	FlagUTF8 uint16 = 0x800
)

// Version-needed-to-extract values.
const (
	VersionDefault uint16 = 20 // 2.0: deflate, directories
	VersionZip64   uint16 = 45 // 4.5: ZIP64 extensions
)

// Creator-version host systems (upper byte of version-made-by).
const (
	CreatorFAT  uint16 = 0
	CreatorUnix uint16 = 3
)

// FileHeader describes one archive member.
//
// A FileHeader is mutable while an entry is being built for a writer; once
// serialized, or once parsed by a reader, it is frozen and must not be
// modified. Sizes, CRC32 and Offset are either all known or all pending:
// a streaming reader leaves them zero until the entry's data descriptor has
// been consumed, and a streaming writer fills them in when the entry is
// closed.
type FileHeader struct {
	// Name is the decoded entry name. Forward slashes separate path
	// segments; a trailing slash marks a directory.
	Name string

	// RawName holds the name bytes exactly as stored in the archive when
	// they differ from Name (non-UTF-8 archives, escape sequences). A nil
	// RawName means Name round-trips as-is.
	RawName []byte

	// Comment is the decoded per-entry comment (central directory only).
	Comment string

	// RawComment is to Comment what RawName is to Name.
	RawComment []byte

	// CreatorVersion is version-made-by; the upper byte is the host
	// system that produced external attributes.
	CreatorVersion uint16
	// ReaderVersion is version-needed-to-extract.
	ReaderVersion uint16

	// Flags is the general-purpose bit flag field; see FlagDataDescriptor,
	// FlagUTF8.
	Flags uint16

	// Method is the compression method code; see Store, Deflate.
	Method uint16

	// Modified is the last-modified time with the best resolution the
	// archive offers (extended-timestamp extra field, else 2-second MS-DOS
	// time). ModifiedTime and ModifiedDate carry the raw MS-DOS encoding.
	Modified     time.Time
	ModifiedTime uint16
	ModifiedDate uint16

	// CRC32 is the checksum of the uncompressed payload.
	CRC32 uint32

	// CompressedSize64 and UncompressedSize64 are the full-width sizes.
	// On-disk 32-bit fields carry Max32 and a ZIP64 extra field when
	// either exceeds 32 bits.
	CompressedSize64   uint64
	UncompressedSize64 uint64

	// InternalAttrs is the internal file attributes field (bit 0: entry is
	// believed to be text).
	InternalAttrs uint16

	// ExternalAttrs is host-dependent; for Unix creators the upper 16 bits
	// hold the file mode.
	ExternalAttrs uint32

	// DiskNumber is the disk the entry starts on. Always 0 in this codec;
	// multi-volume archives are out of scope.
	DiskNumber uint32

	// Offset is the position of the entry's local file header relative to
	// the start of the archive. Valid once the entry has been positioned
	// by a reader or writer.
	Offset uint64

	// Extra holds the raw extra-field bytes. Use
	// [github.com/zippkg/zipp/extra.Parse] to walk the chain; unrecognized
	// records round-trip verbatim.
	Extra []byte

	// NonUTF8 reports that the name/comment bytes are known not to be
	// UTF-8 even though they may look like it.
	NonUTF8 bool
}

// IsDir reports whether the entry is a directory, either by trailing slash
// convention or by the MS-DOS directory attribute bit.
func (fh *FileHeader) IsDir() bool {
	return strings.HasSuffix(fh.Name, "/") || fh.ExternalAttrs&0x10 != 0
}

// UsesDataDescriptor reports whether sizes and CRC32 follow the payload in a
// data descriptor record.
func (fh *FileHeader) UsesDataDescriptor() bool {
	return fh.Flags&FlagDataDescriptor != 0
}

// IsUTF8 reports whether the UTF-8 encoding flag (bit 11) is set.
func (fh *FileHeader) IsUTF8() bool {
	return fh.Flags&FlagUTF8 != 0
}

// Encrypted reports whether the entry is encrypted (bit 0 or bit 6). This
// codec can list such entries but refuses to open them.
func (fh *FileHeader) Encrypted() bool {
	return fh.Flags&0x1 != 0 || fh.Flags&FlagStrongEncryption != 0
}

// Mode returns the permission and mode bits encoded in the external
// attributes for the entry's creator system.
func (fh *FileHeader) Mode() (mode fs.FileMode) {
	switch fh.CreatorVersion >> 8 {
	case CreatorUnix:
		mode = unixModeToFileMode(fh.ExternalAttrs >> 16)
	default:
		// MS-DOS attributes: 0x10 directory, 0x01 read-only.
		mode = 0666
		if fh.ExternalAttrs&0x10 != 0 {
			mode |= fs.ModeDir | 0111
		}
		if fh.ExternalAttrs&0x01 != 0 {
			mode &^= 0222
		}
	}
	if fh.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

// SetMode stores mode into the external attributes, marking the entry as
// created on Unix, and keeps the MS-DOS directory/read-only bits coherent for
// less capable readers.
func (fh *FileHeader) SetMode(mode fs.FileMode) {
	fh.CreatorVersion = fh.CreatorVersion&0xff | CreatorUnix<<8
	fh.ExternalAttrs = fileModeToUnixMode(mode) << 16
	if mode.IsDir() {
		fh.ExternalAttrs |= 0x10
	}
	if mode&0200 == 0 {
		fh.ExternalAttrs |= 0x01
	}
}

// BaseName returns the last path segment of the entry name.
func (fh *FileHeader) BaseName() string {
	return path.Base(strings.TrimSuffix(fh.Name, "/"))
}

const (
	sIFMT   = 0xf000
	sIFSOCK = 0xc000
	sIFLNK  = 0xa000
	sIFREG  = 0x8000
	sIFBLK  = 0x6000
	sIFDIR  = 0x4000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sISUID  = 0x800
	sISGID  = 0x400
	sISVTX  = 0x200
)

func unixModeToFileMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0777)
	switch m & sIFMT {
	case sIFBLK:
		mode |= fs.ModeDevice
	case sIFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case sIFDIR:
		mode |= fs.ModeDir
	case sIFIFO:
		mode |= fs.ModeNamedPipe
	case sIFLNK:
		mode |= fs.ModeSymlink
	case sIFSOCK:
		mode |= fs.ModeSocket
	}
	if m&sISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&sISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&sISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

func fileModeToUnixMode(mode fs.FileMode) uint32 {
	var m uint32
	switch mode & fs.ModeType {
	default:
		m = sIFREG
	case fs.ModeDir:
		m = sIFDIR
	case fs.ModeSymlink:
		m = sIFLNK
	case fs.ModeNamedPipe:
		m = sIFIFO
	case fs.ModeSocket:
		m = sIFSOCK
	case fs.ModeDevice:
		m = sIFBLK
	case fs.ModeDevice | fs.ModeCharDevice:
		m = sIFCHR
	}
	if mode&fs.ModeSetuid != 0 {
		m |= sISUID
	}
	if mode&fs.ModeSetgid != 0 {
		m |= sISGID
	}
	if mode&fs.ModeSticky != 0 {
		m |= sISVTX
	}
	return m | uint32(mode&0777)
}
