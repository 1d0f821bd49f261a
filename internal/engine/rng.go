package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"
)

// hashScale is the divisor applied to the folded 32-bit hash (2^31 - 1).
const hashScale = 2147483647

// maxBelowOne is the clamp used when a hash magnitude would map to 1 or above.
var maxBelowOne = math.Nextafter(1, 0)

// ErrUnknownDrawer is returned by DrawerByName for an unsupported RNG name.
var ErrUnknownDrawer = errors.New("unknown rng drawer")

// Stream draws successive values for a single seed, indexed by nonce.
type Stream func(nonce uint64) float64

// Drawer derives a reproducible value in [0, 1) from a (seed, nonce) pair.
// Implementations must be pure: no hidden state, no clock, no entropy.
type Drawer interface {
	Draw(seed string, nonce uint64) float64
	Stream(seed string) Stream
	Name() string
}

// Legacy is the rolling-hash drawer used for every recorded round.
var Legacy Drawer = LegacyDrawer{}

// Draw is the package-level shorthand for Legacy.Draw.
func Draw(seed string, nonce uint64) float64 {
	return Legacy.Draw(seed, nonce)
}

// LegacyDrawer folds seed+nonce into a signed 32-bit accumulator with
// hash = hash*31 + codeUnit over UTF-16 code units, then maps |hash| onto
// [0, 1) by dividing by 2^31-1.
type LegacyDrawer struct{}

// Name returns the drawer identifier.
func (LegacyDrawer) Name() string { return "legacy" }

// Draw returns the value for one nonce.
func (d LegacyDrawer) Draw(seed string, nonce uint64) float64 {
	return d.Stream(seed)(nonce)
}

// Stream folds the seed once and reuses the prefix for every nonce, so
// rejection-sampling loops do not re-hash the seed on each draw.
func (LegacyDrawer) Stream(seed string) Stream {
	prefix := foldString(0, seed)
	return func(nonce uint64) float64 {
		var buf [20]byte
		h := prefix
		for _, c := range strconv.AppendUint(buf[:0], nonce, 10) {
			h = h*31 + int32(c)
		}
		return hashToUnit(h)
	}
}

// foldString continues the rolling hash over s. Runes outside the BMP
// contribute their two surrogate code units. Signed overflow wraps.
func foldString(h int32, s string) int32 {
	for _, r := range s {
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			h = h*31 + int32(hi)
			h = h*31 + int32(lo)
			continue
		}
		h = h*31 + int32(r)
	}
	return h
}

func hashToUnit(h int32) float64 {
	v := math.Abs(float64(h)) / hashScale
	if v >= 1 {
		return maxBelowOne
	}
	return v
}

// HMACDrawer derives values from HMAC-SHA256 keyed by the seed over the
// decimal nonce. It keeps the (seed, nonce) -> [0, 1) contract of the
// legacy drawer but is not predictable from a guessed hash state.
type HMACDrawer struct{}

// Name returns the drawer identifier.
func (HMACDrawer) Name() string { return "hmac" }

// Draw returns the value for one nonce.
func (HMACDrawer) Draw(seed string, nonce uint64) float64 {
	h := hmac.New(sha256.New, []byte(seed))
	h.Write(strconv.AppendUint(nil, nonce, 10))
	sum := h.Sum(nil)
	return bytesToFloat([4]byte{sum[0], sum[1], sum[2], sum[3]})
}

// Stream binds the seed for repeated draws.
func (d HMACDrawer) Stream(seed string) Stream {
	return func(nonce uint64) float64 {
		return d.Draw(seed, nonce)
	}
}

// bytesToFloat converts exactly 4 bytes to a float in [0, 1) as
// sum(b_i / 256^(i+1)).
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}

// DrawerByName resolves the configured drawer.
func DrawerByName(name string) (Drawer, error) {
	switch name {
	case "", "legacy":
		return Legacy, nil
	case "hmac":
		return HMACDrawer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDrawer, name)
	}
}
