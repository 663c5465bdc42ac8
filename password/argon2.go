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
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 10
	maxPassBytes          = 1024
	algorithmID           = "argon2id"
)

var (
	// ErrMismatch is returned by Check when the password does not match.
	ErrMismatch = errors.New("password mismatch")
	// ErrMalformedHash is returned for hashes that are not argon2id PHC strings.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrPasswordLength is returned for passwords outside 10..1024 bytes.
	ErrPasswordLength = errors.New("password must be between 10 and 1024 bytes")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns interactive-login parameters (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords. It is immutable and safe for concurrent use.
type Hasher struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewHasher validates cfg against minimum costs.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns a PHC-encoded argon2id hash of password. Bytes are hashed as
// given, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPassBytes || len(password) > maxPassBytes {
		return "", ErrPasswordLength
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)
	return encode(phc{
		memory:      h.config.Memory,
		time:        h.config.Time,
		parallelism: h.config.Parallelism,
		salt:        salt,
		hash:        key,
	}), nil
}

// Check returns nil when password matches encodedHash and ErrMismatch when it
// does not.
func (h *Hasher) Check(password, encodedHash string) error {
	if len(password) > maxPassBytes {
		return ErrMismatch
	}
	parsed, err := decode(encodedHash)
	if err != nil {
		return err
	}

	key := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))
	if subtle.ConstantTimeCompare(key, parsed.hash) != 1 {
		return ErrMismatch
	}
	return nil
}

// NeedsRehash reports whether encodedHash was produced with weaker parameters
// than the Hasher's.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	parsed, err := decode(encodedHash)
	if err != nil {
		return false, err
	}
	return h.config.Memory > parsed.memory ||
		h.config.Time > parsed.time ||
		h.config.Parallelism > parsed.parallelism ||
		h.config.KeyLength != uint32(len(parsed.hash)), nil
}

func encode(p phc) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.hash),
	)
}

func decode(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	var p phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return nil, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) < int(minKeyLength) {
		return nil, fmt.Errorf("%w: hash", ErrMalformedHash)
	}
	return &p, nil
}
