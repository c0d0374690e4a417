package plan

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BaseUUID is the Bluetooth SIG base UUID. 16-bit UUIDs are substituted into
// the first group, i.e. 0000xxxx-0000-1000-8000-00805f9b34fb.
const BaseUUID = "00000000-0000-1000-8000-00805f9b34fb"

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

var ErrInvalidUUID = errors.New("invalid uuid")

// UUID is a 128-bit identifier in its canonical lowercase, dashed form.
type UUID string

// UUIDFromShort expands a 16-bit UUID using the Bluetooth SIG base UUID.
func UUIDFromShort(short uint16) UUID {
	return UUID(fmt.Sprintf("0000%04x%s", short, baseUUIDSuffix))
}

// ParseUUID accepts 16-bit ("1101", "0x1101") and 128-bit (dashed or not)
// forms and returns the canonical 128-bit UUID.
func ParseUUID(s string) (UUID, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.TrimPrefix(raw, "0x")
	raw = strings.ReplaceAll(raw, "-", "")

	switch len(raw) {
	case 4:
		v, err := strconv.ParseUint(raw, 16, 16)
		if err != nil {
			return "", errors.Wrapf(ErrInvalidUUID, "%q", s)
		}

		return UUIDFromShort(uint16(v)), nil
	case 32:
		if _, err := hex.DecodeString(raw); err != nil {
			return "", errors.Wrapf(ErrInvalidUUID, "%q", s)
		}

		return UUID(raw[0:8] + "-" + raw[8:12] + "-" + raw[12:16] + "-" + raw[16:20] + "-" + raw[20:]), nil
	default:
		return "", errors.Wrapf(ErrInvalidUUID, "%q: unexpected length %d", s, len(raw))
	}
}

// MustParseUUID is like ParseUUID but panics on error. Meant for constants.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}

	return u
}

// Short returns the 16-bit form of u if it is derived from the base UUID.
func (u UUID) Short() (uint16, bool) {
	s := string(u)

	if len(s) != 36 || !strings.HasPrefix(s, "0000") || !strings.HasSuffix(s, baseUUIDSuffix) {
		return 0, false
	}

	v, err := strconv.ParseUint(s[4:8], 16, 16)
	if err != nil {
		return 0, false
	}

	return uint16(v), true
}

func (u UUID) String() string {
	if short, ok := u.Short(); ok {
		return fmt.Sprintf("%04x", short)
	}

	return string(u)
}
