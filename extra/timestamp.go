package extra

import (
	"encoding/binary"
	"errors"
	"time"
)

// ExtendedTimestamp is the Info-ZIP extended timestamp field (tag 0x5455):
// one flags byte (bit 0/1/2 = modify/access/create time present) followed by
// the present times as 4-byte signed UNIX timestamps, in bit order.
//
// In a local-header context all present timestamps are written. In a
// central-directory context only the modify timestamp is written, even when
// more presence bits are set; the flags byte still advertises the full set so
// readers know to consult the local header.
type ExtendedTimestamp struct {
	ModTime    time.Time
	AccessTime time.Time
	CreateTime time.Time

	HasModTime    bool
	HasAccessTime bool
	HasCreateTime bool
}

// NewExtendedTimestamp returns a field carrying only the modify time.
func NewExtendedTimestamp(mod time.Time) *ExtendedTimestamp {
	return &ExtendedTimestamp{ModTime: mod, HasModTime: true}
}

func parseExtendedTimestamp(_ uint16, data []byte) (Field, error) {
	if len(data) < 1 {
		return nil, errors.New("missing flags byte")
	}

	f := &ExtendedTimestamp{
		HasModTime:    data[0]&0x1 != 0,
		HasAccessTime: data[0]&0x2 != 0,
		HasCreateTime: data[0]&0x4 != 0,
	}
	data = data[1:]

	// central-directory copies advertise bits whose values live only in
	// the local header, so run out of bytes without failing.
	next := func() (time.Time, bool) {
		if len(data) < 4 {
			return time.Time{}, false
		}
		ts := int32(binary.LittleEndian.Uint32(data))
		data = data[4:]
		return time.Unix(int64(ts), 0).UTC(), true
	}

	var ok bool
	if f.HasModTime {
		if f.ModTime, ok = next(); !ok {
			f.HasModTime = false
		}
	}
	if f.HasAccessTime {
		if f.AccessTime, ok = next(); !ok {
			f.HasAccessTime = false
		}
	}
	if f.HasCreateTime {
		if f.CreateTime, ok = next(); !ok {
			f.HasCreateTime = false
		}
	}

	return f, nil
}

func (f *ExtendedTimestamp) Tag() uint16 {
	return ExtendedTimestampTag
}

func (f *ExtendedTimestamp) AppendData(b []byte, h Header) []byte {
	var flags byte
	if f.HasModTime {
		flags |= 0x1
	}
	if f.HasAccessTime {
		flags |= 0x2
	}
	if f.HasCreateTime {
		flags |= 0x4
	}
	b = append(b, flags)

	if f.HasModTime {
		b = binary.LittleEndian.AppendUint32(b, uint32(int32(f.ModTime.Unix())))
	}
	if h == CentralDirectory {
		return b
	}
	if f.HasAccessTime {
		b = binary.LittleEndian.AppendUint32(b, uint32(int32(f.AccessTime.Unix())))
	}
	if f.HasCreateTime {
		b = binary.LittleEndian.AppendUint32(b, uint32(int32(f.CreateTime.Unix())))
	}
	return b
}
