// Package signing implements HMAC request signing for trusted backend
// destinations. A Signer decides by URL-matching policy whether an outbound
// request must carry a signature, and computes the signature headers; the
// Transport in this package applies it as HTTP client middleware so every
// call site inherits correct signing without per-site logic.
package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

const (
	// DefaultSignatureHeader carries the hex HMAC-SHA256 digest.
	DefaultSignatureHeader = "X-Signature"

	// DefaultTimestampHeader carries the signing time in unix seconds.
	DefaultTimestampHeader = "X-Timestamp"

	// DefaultNonceHeader carries the per-request nonce.
	DefaultNonceHeader = "X-Nonce"

	// DefaultValidityWindow is the backend's accepted |now - timestamp|
	// skew. The client does not enforce it; it is recorded here so both
	// sides agree on the default.
	DefaultValidityWindow = 300 * time.Second

	// telegramHost is never signed, regardless of the trusted patterns.
	telegramHost = "api.telegram.org"
)

// Config describes a Signer. Secret and TrustedURLs are required.
type Config struct {
	Secret      string
	TrustedURLs []string

	// Header name overrides. Zero values select the defaults.
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string

	ValidityWindow time.Duration
}

// pattern is one normalized trusted-destination entry. Entries with a
// scheme match by full-URL prefix; bare domains match by host substring.
type pattern struct {
	raw    string
	host   string
	hasURL bool
}

// Signer computes signature headers for requests bound to trusted
// backend destinations.
type Signer struct {
	secret          []byte
	patterns        []pattern
	signatureHeader string
	timestampHeader string
	nonceHeader     string
	validityWindow  time.Duration
}

// New creates a Signer. It refuses to construct with an empty secret or an
// empty trusted-destination list: a misconfigured signer must fail loudly
// at startup rather than silently send unsigned requests.
func New(cfg Config) (*Signer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}

	if len(cfg.TrustedURLs) == 0 {
		return nil, fmt.Errorf("at least one trusted backend URL is required")
	}

	s := &Signer{
		secret:          []byte(cfg.Secret),
		signatureHeader: cfg.SignatureHeader,
		timestampHeader: cfg.TimestampHeader,
		nonceHeader:     cfg.NonceHeader,
		validityWindow:  cfg.ValidityWindow,
	}

	if s.signatureHeader == "" {
		s.signatureHeader = DefaultSignatureHeader
	}

	if s.timestampHeader == "" {
		s.timestampHeader = DefaultTimestampHeader
	}

	if s.nonceHeader == "" {
		s.nonceHeader = DefaultNonceHeader
	}

	if s.validityWindow <= 0 {
		s.validityWindow = DefaultValidityWindow
	}

	for _, raw := range cfg.TrustedURLs {
		raw = strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
		if raw == "" {
			continue
		}

		p := pattern{raw: raw}

		if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
			p.hasURL = true
			if u, err := url.Parse(raw); err == nil {
				p.host = u.Host
			}
		}

		s.patterns = append(s.patterns, p)
	}

	if len(s.patterns) == 0 {
		return nil, fmt.Errorf("trusted backend URL list contains no usable entries")
	}

	return s, nil
}

// ValidityWindow returns the configured signature validity window.
func (s *Signer) ValidityWindow() time.Duration {
	return s.validityWindow
}

// ShouldSign reports whether a request to rawURL must be signed.
// The Telegram API host is excluded unconditionally: the exclusion wins
// even when a trusted pattern would otherwise match.
func (s *Signer) ShouldSign(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Host)
	if host == "" {
		return false
	}

	if strings.Contains(host, telegramHost) {
		return false
	}

	requestURL := strings.ToLower(u.Scheme) + "://" + host

	for _, p := range s.patterns {
		if !p.hasURL {
			if strings.Contains(host, p.raw) {
				return true
			}

			continue
		}

		if strings.HasPrefix(requestURL, p.raw) {
			return true
		}

		// A trusted URL also vouches for its bare host, so a request to
		// the same host over a different scheme or port still matches.
		if p.host != "" && strings.Contains(host, p.host) {
			return true
		}
	}

	return false
}

// Headers computes the three signature headers for a request, minting a
// fresh timestamp and nonce. Retries must call Headers again: a nonce is
// never reused, even for the same logical request.
func (s *Signer) Headers(method, path string, body []byte) map[string]string {
	return s.headersAt(method, path, body, time.Now().Unix(), uuid.NewString())
}

// headersAt is the deterministic core of Headers, split out so tests can
// pin the timestamp and nonce.
func (s *Signer) headersAt(method, path string, body []byte, timestamp int64, nonce string) map[string]string {
	if path == "" {
		path = "/"
	}

	message := strings.ToUpper(method) + "|" + path + "|" + CanonicalBody(body) + "|" +
		strconv.FormatInt(timestamp, 10) + "|" + nonce

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))

	return map[string]string{
		s.signatureHeader: hex.EncodeToString(mac.Sum(nil)),
		s.timestampHeader: strconv.FormatInt(timestamp, 10),
		s.nonceHeader:     nonce,
	}
}

// CanonicalBody returns the deterministic serialization of a request body
// used as HMAC input. JSON bodies are re-serialized with stable key
// ordering and fixed separators so the same logical payload always yields
// the same digest material regardless of how the caller encoded it.
// Non-JSON bodies are used verbatim; an empty body canonicalizes to "".
func CanonicalBody(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	var decoded any

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if err := dec.Decode(&decoded); err != nil {
		return string(trimmed)
	}

	// Reject trailing garbage after the first JSON value.
	if dec.More() {
		return string(trimmed)
	}

	canonical, err := marshalCanonical(decoded)
	if err != nil {
		return string(trimmed)
	}

	return canonical
}

// marshalCanonical serializes a decoded JSON value with sorted object keys
// and no byte-escaping beyond what JSON requires. encoding/json already
// sorts map keys; SetEscapeHTML(false) keeps '<', '>' and '&' literal so
// the digest material matches the backend's canonical form. Non-ASCII
// runes are emitted as \uXXXX escapes, again matching the backend, which
// canonicalizes to an ASCII-only form.
func marshalCanonical(v any) (string, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return "", err
	}

	// Encoder appends a newline; the canonical form has none.
	return escapeNonASCII(strings.TrimSuffix(buf.String(), "\n")), nil
}

// escapeNonASCII rewrites runes above 0x7f as \uXXXX escapes, with
// surrogate pairs for runes outside the BMP. Serialized JSON only
// carries non-ASCII inside string literals, so escaping the whole
// document is safe.
func escapeNonASCII(s string) string {
	ascii := true

	for _, r := range s {
		if r > 0x7f {
			ascii = false
			break
		}
	}

	if ascii {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case r <= 0x7f:
			b.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}

	return b.String()
}
