package cache

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu-server/pkg/logger"
)

const (
	// KeyVersion prefixes every generated key. Bump it to orphan all values written
	// with an incompatible encoding.
	KeyVersion = "v2"

	fallbackToken      = "invalid"
	maxComponentLength = 128
	maxPrefixLength    = 64
	keySeparator       = ":"
)

// Lower-cased substrings that disqualify a key component outright. Glob metacharacters are
// listed so an identifier can never widen an invalidation pattern.
var suspiciousPatterns = []string{
	"..",
	"__proto__",
	"prototype",
	"constructor",
	"<script",
	"javascript:",
	"${",
	"%2e%2e",
	"%2f",
	"%00",
	"*",
	"?",
	"[",
	"]",
}

// KeyOptions scopes a generated key.
type KeyOptions struct {
	UserID     string
	BusinessID string
	// QueryHash is a precomputed hash of query parameters, see HashQuery.
	QueryHash string
	// Shared drops user scoping so the entry is reused across users.
	Shared bool
}

// KeyGenerator builds versioned, namespaced cache keys from untrusted components.
type KeyGenerator struct {
	version string
	log     *zap.Logger
}

// NewKeyGenerator constructs a generator logging rejected components to log.
func NewKeyGenerator(log *zap.Logger) *KeyGenerator {
	if log == nil {
		log = zap.NewNop()
	}
	return &KeyGenerator{version: KeyVersion, log: log}
}

// GenerateKey builds a key with the package-level logger.
func GenerateKey(prefix, identifier string, opts KeyOptions) string {
	return NewKeyGenerator(logger.WithModule("cache")).Generate(prefix, identifier, opts)
}

// Generate returns {version}:{prefix}:[user:id]:[biz:id]:{identifier}:[queryHash].
// It never fails: components that do not survive sanitisation are replaced by a
// fallback token and a warning is logged.
func (g *KeyGenerator) Generate(prefix, identifier string, opts KeyOptions) string {
	key, _ := g.Build(prefix, identifier, opts)
	return key
}

// Build is Generate that also reports whether every component survived sanitisation.
// Keys built with a fallback token may collide across inputs and should not be cached under.
func (g *KeyGenerator) Build(prefix, identifier string, opts KeyOptions) (string, bool) {
	valid := true
	add := func(parts []string, name, raw string, limit int) []string {
		clean, ok := g.component(name, raw, limit)
		valid = valid && ok
		return append(parts, clean)
	}

	parts := make([]string, 0, 8)
	parts = add(append(parts, g.version), "prefix", prefix, maxPrefixLength)

	if !opts.Shared && strings.TrimSpace(opts.UserID) != "" {
		parts = add(append(parts, "user"), "user_id", opts.UserID, maxComponentLength)
	}
	if strings.TrimSpace(opts.BusinessID) != "" {
		parts = add(append(parts, "biz"), "business_id", opts.BusinessID, maxComponentLength)
	}

	parts = add(parts, "identifier", identifier, maxComponentLength)

	if strings.TrimSpace(opts.QueryHash) != "" {
		parts = add(parts, "query_hash", opts.QueryHash, maxComponentLength)
	}

	return strings.Join(parts, keySeparator), valid
}

func (g *KeyGenerator) component(name, raw string, limit int) (string, bool) {
	clean, ok := SanitizeComponent(raw, limit)
	if !ok {
		g.log.Warn("rejected cache key component",
			zap.String("component", name),
			zap.Int("length", len(raw)),
		)
		return fallbackToken, false
	}
	return clean, true
}

// SanitizeComponent rejects components matching the suspicious pattern list (glob
// metacharacters included), then strips separators, control characters and anything outside
// letters, digits and "_.@-", and truncates the result to limit runes. A component that ends up
// empty is rejected too.
func SanitizeComponent(raw string, limit int) (string, bool) {
	if limit <= 0 {
		limit = maxComponentLength
	}
	if containsSuspicious(raw) {
		return "", false
	}

	var builder strings.Builder
	builder.Grow(len(raw))
	runes := 0
	lastUnderscore := false
	for _, r := range strings.TrimSpace(raw) {
		if runes >= limit {
			break
		}
		switch {
		case unicode.IsSpace(r):
			if lastUnderscore {
				continue
			}
			builder.WriteRune('_')
			lastUnderscore = true
			runes++
			continue
		case unicode.IsControl(r):
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '.', r == '@', r == '-':
			builder.WriteRune(r)
		default:
			continue
		}
		lastUnderscore = false
		runes++
	}

	clean := builder.String()
	if clean == "" || containsSuspicious(clean) {
		return "", false
	}
	return clean, true
}

func containsSuspicious(value string) bool {
	lowered := strings.ToLower(value)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

// HashQuery returns a stable hex digest of query parameters, independent of map order.
func HashQuery(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	digest := xxhash.New()
	for _, key := range keys {
		_, _ = digest.WriteString(key)
		_, _ = digest.WriteString("=")
		_, _ = digest.WriteString(fmt.Sprint(params[key]))
		_, _ = digest.WriteString(";")
	}
	return fmt.Sprintf("%016x", digest.Sum64())
}

// keyPrefix extracts the namespace of a generated key for metric labels.
func keyPrefix(key string) string {
	parts := strings.SplitN(key, keySeparator, 3)
	if len(parts) >= 2 && parts[0] == KeyVersion && parts[1] != "" {
		return parts[1]
	}
	return "unknown"
}
