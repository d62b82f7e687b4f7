package raffle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

const windowSize = 8

// pickIndex maps a random value onto [0, n) without modulo bias. The value is
// read as big-endian 64-bit windows and any window from the incomplete top
// range is rejected; once the value is exhausted it is extended with
// sha256(value || counter), so the result is deterministic.
func pickIndex(value []byte, n uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: empty range", ErrInvalidWinnerIndex)
	}

	// 2^64 mod n
	rem := (math.MaxUint64%n + 1) % n
	limit := uint64(math.MaxUint64) - rem

	stream := value
	for counter := uint64(0); ; counter++ {
		for len(stream) >= windowSize {
			v := binary.BigEndian.Uint64(stream[:windowSize])
			stream = stream[windowSize:]
			if v <= limit {
				return v % n, nil
			}
		}
		stream = extend(value, counter)
	}
}

func extend(value []byte, counter uint64) []byte {
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], counter)

	h := sha256.New()
	h.Write(value)
	h.Write(suffix[:])
	return h.Sum(nil)
}
