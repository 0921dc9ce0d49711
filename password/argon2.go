package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
	defaultMinimum        = 10
	// DefaultMaxLength caps password input so hashing cost cannot be inflated.
	DefaultMaxLength = 1024
)

var (
	// ErrTooShort is returned by Hash when the password is below MinLength.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned by Hash and Verify above MaxLength.
	ErrTooLong = errors.New("password too long")
	// ErrMalformedHash is returned when a stored hash is not an argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is the minimum password length in bytes. Zero means 10.
	MinLength int
	// MaxLength is the maximum password length in bytes. Zero means
	// DefaultMaxLength.
	MaxLength int
}

// DefaultConfig returns the recommended interactive-login parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   defaultMinimum,
		MaxLength:   DefaultMaxLength,
	}
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	config Config
	rand   io.Reader
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if cfg.MinLength == 0 {
		cfg.MinLength = defaultMinimum
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	case cfg.MinLength < 1:
		return nil, errors.New("password minimum length must be >= 1")
	case cfg.MaxLength < cfg.MinLength:
		return nil, errors.New("password maximum length must be >= minimum length")
	}
	return &Hasher{config: cfg, rand: rand.Reader}, nil
}

// MinLength reports the configured minimum password length.
func (h *Hasher) MinLength() int {
	return h.config.MinLength
}

// Hash returns a PHC-encoded argon2id hash of password. Bytes are hashed as
// given, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < h.config.MinLength {
		return "", ErrTooShort
	}
	if len(password) > h.config.MaxLength {
		return "", ErrTooLong
	}
	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)
	return encode(params{
		memory:      h.config.Memory,
		time:        h.config.Time,
		parallelism: h.config.Parallelism,
		salt:        salt,
		hash:        key,
	}), nil
}

// Verify reports whether password matches encoded. The comparison is
// constant-time over the derived key.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if len(password) > h.config.MaxLength {
		return false, ErrTooLong
	}
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the Hasher's current ones.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < h.config.Memory ||
		p.time < h.config.Time ||
		p.parallelism < h.config.Parallelism ||
		uint32(len(p.hash)) != h.config.KeyLength, nil
}

func encode(p params) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.hash))
}

func decode(encoded string) (params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return params{}, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params{}, fmt.Errorf("%w: version", ErrMalformedHash)
	}
	var p params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return params{}, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	if p.memory < minMemoryKB || p.time < 1 || p.parallelism < 1 {
		return params{}, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || uint32(len(p.salt)) < minSaltLength {
		return params{}, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.hash, err = decodeB64(parts[5]); err != nil || len(p.hash) == 0 {
		return params{}, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}

// decodeB64 accepts both unpadded (reference PHC) and padded encodings.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
