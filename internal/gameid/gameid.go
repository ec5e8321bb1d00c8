// Package gameid generates the identifiers used by rooms, players and cards.
//
// Player and card identifiers are UUIDv7 values encoded as 26-character
// Crockford base32 strings. Room codes are short, human-typeable codes drawn
// from the upper-case form of the same alphabet.
package gameid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// codeAlphabet is the upper-case alphabet used for room codes.
const codeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// RoomCodeLength is the number of characters in a room code.
const RoomCodeLength = 6

// RandSource interface for dependency injection of randomness
type RandSource interface {
	IntN(n int) int
}

// Generator handles identifier generation with configurable randomness
type Generator struct {
	randSource RandSource
	now        func() time.Time
}

// NewGenerator creates a new generator with optional RandSource. A nil
// source uses crypto/rand.
func NewGenerator(randSource RandSource) *Generator {
	return &Generator{randSource: randSource, now: time.Now}
}

// NewGeneratorWithClock is NewGenerator with the UUIDv7 time prefix read
// from clock. A mock clock and a seeded source make ids reproducible.
func NewGeneratorWithClock(randSource RandSource, clock quartz.Clock) *Generator {
	return &Generator{randSource: randSource, now: func() time.Time { return clock.Now() }}
}

// Generate creates a new identifier using UUIDv7 encoded as 26-character base32 string
func Generate() string {
	return NewGenerator(nil).ID()
}

// ID creates a new player or card identifier.
func (g *Generator) ID() string {
	uuid := g.generateUUIDv7()
	return encodeBase32(uuid)
}

// RoomCode creates a new room code. Uniqueness against live rooms is the
// caller's responsibility.
func (g *Generator) RoomCode() string {
	var buf [RoomCodeLength]byte
	g.fill(buf[:])
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf[:])
}

func (g *Generator) fill(b []byte) {
	if g.randSource != nil {
		for i := range b {
			b[i] = byte(g.randSource.IntN(256))
		}
		return
	}
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate random bytes: " + err.Error())
	}
}

// generateUUIDv7 creates a 128-bit UUIDv7
func (g *Generator) generateUUIDv7() [16]byte {
	var uuid [16]byte

	// UUIDv7 format:
	// 48-bit timestamp (milliseconds since Unix epoch)
	// 12-bit random data for sub-millisecond precision
	// 4-bit version (0111 for version 7)
	// 2-bit variant (10)
	// 62-bit random data

	now := g.now().UnixMilli()

	uuid[0] = byte(now >> 40)
	uuid[1] = byte(now >> 32)
	uuid[2] = byte(now >> 24)
	uuid[3] = byte(now >> 16)
	uuid[4] = byte(now >> 8)
	uuid[5] = byte(now)

	g.fill(uuid[6:])

	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return uuid
}

// encodeBase32 encodes a 128-bit UUID as a 26-character base32 string
func encodeBase32(data [16]byte) string {
	result := make([]byte, 26)

	for i := 0; i < 26; i++ {
		bitOffset := i * 5
		byteIndex := bitOffset / 8
		bitIndex := bitOffset % 8

		var value uint8

		if byteIndex < 16 {
			if bitIndex <= 3 {
				value = (data[byteIndex] >> (3 - bitIndex)) & 0x1f
			} else {
				// Bits span two bytes
				value = (data[byteIndex] << (bitIndex - 3)) & 0x1f
				if byteIndex+1 < 16 {
					value |= data[byteIndex+1] >> (11 - bitIndex)
				}
			}
		}

		result[i] = alphabet[value]
	}

	return string(result)
}

// Validate checks if an identifier is valid (26 characters, valid base32)
func Validate(id string) error {
	if len(id) != 26 {
		return fmt.Errorf("id must be exactly 26 characters, got %d", len(id))
	}

	if id[0] > '7' {
		return fmt.Errorf("id first character must be 0-7, got %c", id[0])
	}

	for i, char := range id {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}

	return nil
}

// NormalizeRoomCode trims and upper-cases user input so codes can be typed
// in any case.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateRoomCode checks a normalized room code.
func ValidateRoomCode(code string) error {
	if len(code) != RoomCodeLength {
		return fmt.Errorf("room code must be exactly %d characters, got %d", RoomCodeLength, len(code))
	}
	for i, char := range code {
		if !strings.ContainsRune(codeAlphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}
