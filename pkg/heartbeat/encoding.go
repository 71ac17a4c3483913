package heartbeat

import (
	"encoding/base64"
	"math/big"
)

// EncodeBytes converts a byte string to its canonical wire form
// (standard base64).
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes reverses EncodeBytes, returning ErrMalformedInput on
// invalid base64.
func DecodeBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, Malformed("invalid base64: %v", err)
	}
	return b, nil
}

// EncodeBytesList maps EncodeBytes over a list of byte strings.
func EncodeBytesList(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = EncodeBytes(b)
	}
	return out
}

// DecodeBytesList maps DecodeBytes over a list of encoded byte strings.
func DecodeBytesList(ss []string) ([][]byte, error) {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		b, err := DecodeBytes(s)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// BytesToInt interprets a byte string as a big-endian unsigned integer.
func BytesToInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// EncodeInt converts a field element to its decimal wire form. Decimal
// strings are used instead of JSON numbers so that primes of 64 bits and
// above survive consumers without arbitrary-precision JSON.
func EncodeInt(n *big.Int) string {
	return n.Text(10)
}

// DecodeInt parses a decimal wire integer, returning ErrMalformedInput on
// anything that is not a base-10 integer.
func DecodeInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, Malformed("invalid decimal integer %q", s)
	}
	return n, nil
}

// EncodeIntList maps EncodeInt over a list of field elements.
func EncodeIntList(ns []*big.Int) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = EncodeInt(n)
	}
	return out
}

// DecodeIntList maps DecodeInt over a list of decimal wire integers.
func DecodeIntList(ss []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		n, err := DecodeInt(s)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
