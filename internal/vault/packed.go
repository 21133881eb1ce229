package vault

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/elys-network/alm/internal/types"
)

// PackedSize is the length of a packed state record.
const PackedSize = 21

const (
	flagSustainable byte = 1 << iota
	flagLocked
)

// PackedState is the vault's small fixed-size record: both ranges, the time of the last
// recenter and two flags.
type PackedState struct {
	Main             types.Range `json:"main"`
	Tilt             types.Range `json:"tilt"`
	LastRecenterTime uint32      `json:"last_recenter_time"` // unix seconds
	Sustainable      bool        `json:"sustainable"`        // set once a budget has hit its cap
	Locked           bool        `json:"locked"`
}

// LastRecenter returns LastRecenterTime as a time.
func (s PackedState) LastRecenter() time.Time {
	return time.Unix(int64(s.LastRecenterTime), 0).UTC()
}

// Pack encodes the record big-endian: four int32 bounds, the uint32 timestamp and a
// flag byte.
func (s PackedState) Pack() [PackedSize]byte {
	var out [PackedSize]byte
	binary.BigEndian.PutUint32(out[0:4], uint32(s.Main.Lower))
	binary.BigEndian.PutUint32(out[4:8], uint32(s.Main.Upper))
	binary.BigEndian.PutUint32(out[8:12], uint32(s.Tilt.Lower))
	binary.BigEndian.PutUint32(out[12:16], uint32(s.Tilt.Upper))
	binary.BigEndian.PutUint32(out[16:20], s.LastRecenterTime)
	var flags byte
	if s.Sustainable {
		flags |= flagSustainable
	}
	if s.Locked {
		flags |= flagLocked
	}
	out[20] = flags
	return out
}

// UnpackState decodes a record produced by Pack.
func UnpackState(b []byte) (PackedState, error) {
	if len(b) != PackedSize {
		return PackedState{}, fmt.Errorf("%w: packed state must be %d bytes, got %d", ErrInvalidState, PackedSize, len(b))
	}
	flags := b[20]
	if flags&^(flagSustainable|flagLocked) != 0 {
		return PackedState{}, fmt.Errorf("%w: unknown flag bits %08b", ErrInvalidState, flags)
	}
	return PackedState{
		Main: types.Range{
			Lower: int32(binary.BigEndian.Uint32(b[0:4])),
			Upper: int32(binary.BigEndian.Uint32(b[4:8])),
		},
		Tilt: types.Range{
			Lower: int32(binary.BigEndian.Uint32(b[8:12])),
			Upper: int32(binary.BigEndian.Uint32(b[12:16])),
		},
		LastRecenterTime: binary.BigEndian.Uint32(b[16:20]),
		Sustainable:      flags&flagSustainable != 0,
		Locked:           flags&flagLocked != 0,
	}, nil
}
