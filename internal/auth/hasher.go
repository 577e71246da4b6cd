package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	algorithmArgon2id = "argon2id"
	algorithmBcrypt   = "bcrypt"
)

// 保存済みハッシュから読むパラメータの上限です。これを超えるものは壊れたハッシュとして扱います。
const (
	MaxMemoryKiB  = 256 * 1024
	MaxIterations = 64
)

var (
	// ErrMalformedHash はハッシュ文字列が PHC 形式として解釈できないときに返ります。
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrEmptyPassword は空のパスワードをハッシュ化しようとしたときに返ります。
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// HashParams は argon2id のパラメータです。
type HashParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams は m=15000, t=2, p=1 を返します。
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:      15000,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PHCHash は PHC 文字列を分解した結果です。
type PHCHash struct {
	Algorithm   string
	Version     int
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Digest      []byte

	encoded string
}

// ParseHash は "$argon2id$v=19$m=..,t=..,p=..$<salt>$<digest>" 形式、
// または旧形式の bcrypt ハッシュ ($2a$/$2b$/$2y$) を分解します。
func ParseHash(encoded string) (*PHCHash, error) {
	if isBcrypt(encoded) {
		if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
			return nil, malformed(err, "invalid bcrypt hash")
		}
		return &PHCHash{Algorithm: algorithmBcrypt, encoded: encoded}, nil
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, malformed(nil, "expected 5 '$'-separated fields")
	}
	if parts[1] != algorithmArgon2id {
		return nil, malformed(nil, "unsupported hash algorithm: "+parts[1])
	}

	h := &PHCHash{Algorithm: parts[1], encoded: encoded}

	if _, err := fmt.Sscanf(parts[2], "v=%d", &h.Version); err != nil {
		return nil, malformed(err, "invalid version field")
	}
	if h.Version != argon2.Version {
		return nil, malformed(nil, "unsupported argon2 version: "+strconv.Itoa(h.Version))
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.Memory, &h.Iterations, &threads); err != nil {
		return nil, malformed(err, "invalid parameter field")
	}
	if threads == 0 || threads > 255 || h.Iterations == 0 || h.Memory == 0 {
		return nil, malformed(nil, "parameters out of range")
	}
	if h.Memory > MaxMemoryKiB || h.Iterations > MaxIterations {
		return nil, malformed(nil, "parameters exceed limits")
	}
	h.Parallelism = uint8(threads)

	var err error
	if h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, malformed(err, "invalid salt encoding")
	}
	if h.Digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, malformed(err, "invalid digest encoding")
	}
	if len(h.Digest) == 0 || len(h.Digest) > 1<<10 {
		return nil, malformed(nil, "invalid digest length")
	}

	return h, nil
}

// Matches は password がこのハッシュと一致するかを判定します。
func (h *PHCHash) Matches(password Secret) (bool, error) {
	if h.Algorithm == algorithmBcrypt {
		err := bcrypt.CompareHashAndPassword([]byte(h.encoded), []byte(password.Expose()))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, malformed(err, "bcrypt comparison failed")
		}
		return true, nil
	}

	computed := argon2.IDKey([]byte(password.Expose()), h.Salt, h.Iterations, h.Memory, h.Parallelism, uint32(len(h.Digest)))
	return subtle.ConstantTimeCompare(computed, h.Digest) == 1, nil
}

// Hasher は argon2id によるハッシュ化と検証を行います。
type Hasher struct {
	params HashParams
}

// NewHasher は Hasher を作成します。
func NewHasher(params HashParams) *Hasher {
	return &Hasher{params: params}
}

// Hash は password の argon2id ハッシュを PHC 形式で返します。
func (h *Hasher) Hash(password Secret) (string, error) {
	if password.IsEmpty() {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	digest := argon2.IDKey([]byte(password.Expose()), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmArgon2id,
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify は encoded を分解してから password と照合します。
// 不一致は (false, nil)、ハッシュ破損は ErrMalformedHash を返します。
func (h *Hasher) Verify(password Secret, encoded string) (bool, error) {
	parsed, err := ParseHash(encoded)
	if err != nil {
		return false, err
	}
	return parsed.Matches(password)
}

// NeedsUpgrade は現在のパラメータで再ハッシュすべきかを返します。
func (h *Hasher) NeedsUpgrade(encoded string) bool {
	parsed, err := ParseHash(encoded)
	if err != nil || parsed.Algorithm != algorithmArgon2id {
		return true
	}
	return parsed.Memory != h.params.Memory ||
		parsed.Iterations != h.params.Iterations ||
		parsed.Parallelism != h.params.Parallelism ||
		uint32(len(parsed.Digest)) != h.params.KeyLength
}

// NewDummyHash は実在しない使い捨てパスワードのハッシュを起動時に1度だけ作ります。
// ユーザーが存在しない場合もこのハッシュと照合することで応答時間をそろえます。
func NewDummyHash(h *Hasher) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	return h.Hash(NewSecret(hex.EncodeToString(buf)))
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func malformed(cause error, msg string) error {
	b := oops.Code("AUTH_INVALID_HASH").With("reason", msg)
	if cause != nil {
		return b.Wrap(fmt.Errorf("%w: %w", ErrMalformedHash, cause))
	}
	return b.Wrap(ErrMalformedHash)
}
