// Package vault stores provider API keys in the kv store in an obfuscated
// form. The obfuscation keeps keys out of casual view (logs, store dumps);
// it is not encryption and does not resist an attacker with the binary.
package vault

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/backstop/pkg/kv"
	"github.com/pario-ai/backstop/pkg/logging"
)

var (
	// ErrInvalidKey is returned when a key does not match its vendor format.
	ErrInvalidKey = errors.New("invalid api key format")
	// ErrPlaceholderKey is returned for template values such as "your_api_key".
	ErrPlaceholderKey = errors.New("api key looks like a placeholder")
)

// Vendor key formats: prefix, length and character class.
var vendorPatterns = map[string]*regexp.Regexp{
	"openai":      regexp.MustCompile(`^sk-[A-Za-z0-9_-]{20,}$`),
	"anthropic":   regexp.MustCompile(`^sk-ant-[A-Za-z0-9_-]{20,}$`),
	"google":      regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`),
	"huggingface": regexp.MustCompile(`^hf_[A-Za-z0-9]{30,}$`),
	"groq":        regexp.MustCompile(`^gsk_[A-Za-z0-9]{20,}$`),
	"generic":     regexp.MustCompile(`^[\x21-\x7E]{16,256}$`),
}

var placeholderMarkers = []string{"placeholder", "your_", "your-", "changeme", "xxxx", "example"}

const (
	encodingVersion = "v1:"
	maskRun         = "********"
)

// pad is XORed over the key bytes.
var pad = []byte("backstop/credential-vault/2f9c")

// Vault reads and writes credential:<providerId> entries.
type Vault struct {
	store  kv.Store
	logger *zap.Logger
}

// New creates a Vault over store.
func New(store kv.Store, logger *zap.Logger) *Vault {
	return &Vault{store: store, logger: logging.OrNop(logger)}
}

// Validate checks rawKey against the vendor format. Unknown vendors use the
// generic rule.
func Validate(vendor, rawKey string) error {
	lower := strings.ToLower(rawKey)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return ErrPlaceholderKey
		}
	}

	pattern, ok := vendorPatterns[vendor]
	if !ok {
		pattern = vendorPatterns["generic"]
	}
	if !pattern.MatchString(rawKey) {
		return fmt.Errorf("%w for vendor %q", ErrInvalidKey, vendorOrGeneric(vendor))
	}
	return nil
}

func vendorOrGeneric(vendor string) string {
	if _, ok := vendorPatterns[vendor]; ok {
		return vendor
	}
	return "generic"
}

// Put validates rawKey and stores it for providerID.
func (v *Vault) Put(ctx context.Context, providerID, vendor, rawKey string) error {
	rawKey = strings.TrimSpace(rawKey)
	if err := Validate(vendor, rawKey); err != nil {
		return err
	}
	if err := v.store.Put(ctx, kv.CredentialKey(providerID), []byte(obfuscate(rawKey))); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	v.logger.Info("credential stored",
		zap.String("provider", providerID),
		zap.String("key", Mask(rawKey)))
	return nil
}

// Get returns the raw key for providerID. ok is false when the entry is
// absent, unreadable or corrupt.
func (v *Vault) Get(ctx context.Context, providerID string) (string, bool) {
	data, ok, err := v.store.Get(ctx, kv.CredentialKey(providerID))
	if err != nil {
		v.logger.Warn("credential read failed", zap.String("provider", providerID), zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	raw, err := deobfuscate(string(data))
	if err != nil {
		v.logger.Warn("credential corrupt", zap.String("provider", providerID), zap.Error(err))
		return "", false
	}
	return raw, true
}

// Has reports whether a readable credential exists for providerID.
func (v *Vault) Has(ctx context.Context, providerID string) bool {
	_, ok := v.Get(ctx, providerID)
	return ok
}

// Delete removes the credential for one provider.
func (v *Vault) Delete(ctx context.Context, providerID string) error {
	if err := v.store.Delete(ctx, kv.CredentialKey(providerID)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// ClearAll removes every credential entry.
func (v *Vault) ClearAll(ctx context.Context) error {
	n, err := v.store.DeletePrefix(ctx, kv.CredentialPrefix)
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	v.logger.Info("credentials cleared", zap.Int64("count", n))
	return nil
}

// Mask shows the first and last four characters of a key.
func Mask(rawKey string) string {
	switch {
	case rawKey == "":
		return ""
	case len(rawKey) <= 8:
		return "***"
	default:
		return rawKey[:4] + maskRun + rawKey[len(rawKey)-4:]
	}
}

func obfuscate(raw string) string {
	buf := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(raw)))
	for i := 0; i < len(raw); i++ {
		buf[4+i] = raw[i] ^ pad[i%len(pad)]
	}
	return encodingVersion + base64.StdEncoding.EncodeToString(buf)
}

var errCorrupt = errors.New("corrupt credential entry")

func deobfuscate(stored string) (string, error) {
	if !strings.HasPrefix(stored, encodingVersion) {
		return "", errCorrupt
	}
	buf, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encodingVersion))
	if err != nil || len(buf) <= 4 {
		return "", errCorrupt
	}
	sum := binary.BigEndian.Uint32(buf[:4])
	raw := make([]byte, len(buf)-4)
	for i := range raw {
		raw[i] = buf[4+i] ^ pad[i%len(pad)]
	}
	if crc32.ChecksumIEEE(raw) != sum {
		return "", errCorrupt
	}
	return string(raw), nil
}
