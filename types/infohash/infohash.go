package infohash

import (
	"crypto/sha1"
	"encoding"
	"encoding/hex"
	"fmt"
)

const Size = 20

// 20-byte SHA1 hash identifying a swarm's content. Peer ids share the width, so derived peer ids
// are built with the same helpers.
type T [Size]byte

func (t T) Bytes() []byte {
	return t[:]
}

func (t T) AsString() string {
	return string(t[:])
}

func (t T) String() string {
	return t.HexString()
}

func (t T) HexString() string {
	return hex.EncodeToString(t[:])
}

func (t T) IsZero() bool {
	return t == T{}
}

func (t *T) FromHexString(s string) (err error) {
	if len(s) != 2*Size {
		return fmt.Errorf("hash hex string has bad length: %d", len(s))
	}
	n, err := hex.Decode(t[:], []byte(s))
	if err != nil {
		return
	}
	if n != Size {
		panic(n)
	}
	return
}

var (
	_ encoding.TextUnmarshaler = (*T)(nil)
	_ encoding.TextMarshaler   = T{}
)

func (t *T) UnmarshalText(b []byte) error {
	return t.FromHexString(string(b))
}

func (t T) MarshalText() (text []byte, err error) {
	return []byte(t.HexString()), nil
}

func FromHexString(s string) (h T) {
	err := h.FromHexString(s)
	if err != nil {
		panic(err)
	}
	return
}

// Returns the SHA1 of b. Used for info dictionaries and for deriving stable ids from strings.
func HashBytes(b []byte) (ret T) {
	return sha1.Sum(b)
}
