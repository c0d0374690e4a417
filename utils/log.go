package utils

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// MaxLoggedElements bounds what ToZeroLogArray emits; busy scans can see
// dozens of peripherals.
const MaxLoggedElements = 16

func ToZeroLogArray[T fmt.Stringer](arr []T) (ret *zerolog.Array) {
	ret = zerolog.Arr()

	for i, elem := range arr {
		if i == MaxLoggedElements {
			return ret.Str("... (+" + strconv.Itoa(len(arr)-i) + " more)")
		}

		ret = ret.Str(elem.String())
	}

	return ret
}
