package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

const (
	MinMultiplier = 1.0

	// VerifyTolerance absorbs float rounding when a third party
	// recomputes a revealed crash point.
	VerifyTolerance = 1e-3
)

// Generator derives provably fair crash points. Zero side effects:
// the same seed and round id always produce the same result, so any
// party holding both can audit a finished round.
type Generator struct {
	HouseEdge float64
	MaxCrash  float64
}

// Generate computes the concealed crash multiplier for a round and the
// commitment hash published at round creation. The hash binds the seed
// to the round without revealing either, so the operator cannot swap
// seeds after wagers are in.
func (g Generator) Generate(seed, roundID string) (float64, string, error) {
	if seed == "" || roundID == "" {
		return 0, "", fmt.Errorf("%w: seed and round id must be non-empty", ErrInvalidInput)
	}

	mac := hmac.New(sha256.New, []byte(seed))
	mac.Write([]byte(roundID))
	digest := mac.Sum(nil)

	// First 8 bytes of the digest as a uniform r in [0,1).
	n := binary.BigEndian.Uint64(digest[:8])
	r := float64(n) / float64(math.MaxUint64)

	crash := (1.0 / (1.0 - r)) * (1.0 - g.HouseEdge)
	if crash < MinMultiplier {
		crash = MinMultiplier
	}
	if g.MaxCrash > 0 && crash > g.MaxCrash {
		crash = g.MaxCrash
	}
	crash = roundTo(crash, 2)

	return crash, Commitment(seed, roundID), nil
}

// Verify recomputes the crash point from the revealed seed and reports
// whether it matches the claimed value within tolerance.
func (g Generator) Verify(claimed float64, seed, roundID string) bool {
	crash, _, err := g.Generate(seed, roundID)
	if err != nil {
		return false
	}
	return math.Abs(crash-claimed) < VerifyTolerance
}

// Commitment returns the hash published at round creation.
func Commitment(seed, roundID string) string {
	h := sha256.Sum256([]byte(seed + ":" + roundID))
	return hex.EncodeToString(h[:])
}

// GenerateSeed creates a cryptographically secure random seed.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Floor(v*p) / p
}
