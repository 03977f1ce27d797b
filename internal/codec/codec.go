package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Kind selects the transform applied before escaping.
type Kind string

const (
	Plain            Kind = "plain"
	StreamXor        Kind = "xor"
	SymmetricEncrypt Kind = "aes"
)

// ParseKind maps a configuration value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "none", "":
		return Plain, nil
	case "xor", "streamxor":
		return StreamXor, nil
	case "aes", "encrypt", "symmetric":
		return SymmetricEncrypt, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

const (
	minFrequency = 1
	maxFrequency = 4
	maxXor       = 127

	passphraseBytes = 32
	hkdfInfo        = "routeproxy codec v1"
)

// Codec is a reversible URL-safe transform. The zero value is not usable;
// construct one with New.
type Codec struct {
	kind Kind
	key  string

	// StreamXor parameters
	xor  byte
	freq int

	// SymmetricEncrypt cipher
	aead cipher.AEAD
}

// New builds a codec of the given kind from key. Plain ignores the key.
func New(kind Kind, key string) (*Codec, error) {
	c := &Codec{kind: kind, key: key}

	switch kind {
	case Plain:
	case StreamXor:
		x, f, err := parseXorKey(key)
		if err != nil {
			return nil, &Error{Op: "key", Kind: kind, Err: ErrInvalidKey, Cause: err}
		}
		c.xor, c.freq = x, f
	case SymmetricEncrypt:
		if key == "" {
			return nil, &Error{Op: "key", Kind: kind, Err: ErrInvalidKey, Cause: fmt.Errorf("empty passphrase")}
		}
		aead, err := newAEAD(key)
		if err != nil {
			return nil, &Error{Op: "key", Kind: kind, Err: ErrInvalidKey, Cause: err}
		}
		c.aead = aead
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return c, nil
}

// MustNew is like New but panics on error. Intended for tests and constants.
func MustNew(kind Kind, key string) *Codec {
	c, err := New(kind, key)
	if err != nil {
		panic(err)
	}
	return c
}

// Kind returns the codec variant.
func (c *Codec) Kind() Kind { return c.kind }

// Key returns the key the codec was built from.
func (c *Codec) Key() string { return c.key }

// Encode transforms s and escapes the result into the route alphabet.
func (c *Codec) Encode(s string) (string, error) {
	switch c.kind {
	case StreamXor:
		return Escape(c.xorBytes([]byte(s), true)), nil
	case SymmetricEncrypt:
		nonce := make([]byte, c.aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return "", &Error{Op: "encode", Kind: c.kind, Err: ErrEncode, Cause: err}
		}
		sealed := c.aead.Seal(nonce, nonce, []byte(s), nil)
		return Escape(base64.RawURLEncoding.EncodeToString(sealed)), nil
	default:
		return Escape(s), nil
	}
}

// Decode unescapes s and applies the inverse transform.
func (c *Codec) Decode(s string) (string, error) {
	raw, err := Unescape(s)
	if err != nil {
		return "", err
	}

	switch c.kind {
	case StreamXor:
		return c.xorBytes([]byte(raw), false), nil
	case SymmetricEncrypt:
		sealed, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return "", &Error{Op: "decode", Kind: c.kind, Err: ErrDecode, Cause: err}
		}
		nonceSize := c.aead.NonceSize()
		if len(sealed) < nonceSize {
			return "", &Error{Op: "decode", Kind: c.kind, Err: ErrDecode, Cause: fmt.Errorf("ciphertext too short")}
		}
		plain, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
		if err != nil {
			return "", &Error{Op: "decode", Kind: c.kind, Err: ErrDecode, Cause: err}
		}
		return string(plain), nil
	default:
		return raw, nil
	}
}

// xorBytes transforms every freq-th byte. Encoding XORs then adds one,
// decoding subtracts one then XORs; both wrap modulo 256.
func (c *Codec) xorBytes(b []byte, encode bool) string {
	for i := range b {
		if i%c.freq != 0 {
			continue
		}
		if encode {
			b[i] = (b[i] ^ c.xor) + 1
		} else {
			b[i] = (b[i] - 1) ^ c.xor
		}
	}
	return string(b)
}

// parseXorKey reads a StreamXor key: the last hex digit is the frequency,
// the preceding digits the XOR value.
func parseXorKey(key string) (byte, int, error) {
	if len(key) < 2 {
		return 0, 0, fmt.Errorf("key %q must have at least two hex digits", key)
	}
	x, err := strconv.ParseUint(key[:len(key)-1], 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("xor value: %w", err)
	}
	if x < 1 || x > maxXor {
		return 0, 0, fmt.Errorf("xor value %d outside 1..%d", x, maxXor)
	}
	f, err := strconv.ParseUint(key[len(key)-1:], 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("frequency: %w", err)
	}
	return byte(x), clampFrequency(int(f)), nil
}

func clampFrequency(f int) int {
	if f < minFrequency {
		return minFrequency
	}
	if f > maxFrequency {
		return maxFrequency
	}
	return f
}

func newAEAD(passphrase string) (cipher.AEAD, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKey returns a fresh key for kind using crypto/rand.
func GenerateKey(kind Kind) (string, error) {
	switch kind {
	case Plain:
		return "", nil
	case StreamXor:
		x, err := randInt(1, maxXor)
		if err != nil {
			return "", &Error{Op: "key", Kind: kind, Err: ErrInvalidKey, Cause: err}
		}
		f, err := randInt(minFrequency, maxFrequency)
		if err != nil {
			return "", &Error{Op: "key", Kind: kind, Err: ErrInvalidKey, Cause: err}
		}
		return strconv.FormatInt(int64(x), 16) + strconv.FormatInt(int64(f), 16), nil
	case SymmetricEncrypt:
		buf := make([]byte, passphraseBytes)
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return "", &Error{Op: "key", Kind: kind, Err: ErrInvalidKey, Cause: err}
		}
		return hex.EncodeToString(buf), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// randInt returns a uniform value in [lo, hi].
func randInt(lo, hi int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo+1)))
	if err != nil {
		return 0, err
	}
	return lo + int(n.Int64()), nil
}
