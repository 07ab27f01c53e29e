package signing

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Transport is an http.RoundTripper that signs requests bound for trusted
// backend destinations and passes everything else through untouched. It is
// the single interception layer for outbound signing: every client built
// on it inherits correct behavior without per-call-site logic.
type Transport struct {
	signer *Signer
	base   http.RoundTripper
	logger *slog.Logger
}

// NewTransport wraps base with signing middleware. A nil base uses
// http.DefaultTransport. A nil signer yields a pure pass-through, which is
// the no-op swap-in for tests.
func NewTransport(signer *Signer, base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{signer: signer, base: base, logger: logger}
}

// RoundTrip implements http.RoundTripper. The incoming request is never
// mutated; a signed clone is sent instead. Each attempt mints a fresh
// timestamp/nonce pair, so transport-level retries re-sign.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.signer == nil || !t.signer.ShouldSign(req.URL.String()) {
		t.logger.Debug("skipping signature",
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
		)

		return t.base.RoundTrip(req)
	}

	body, err := requestBody(req)
	if err != nil {
		return nil, fmt.Errorf("reading request body for signing: %w", err)
	}

	clone := req.Clone(req.Context())
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	path := req.URL.Path
	if path == "" {
		path = "/"
	}

	headers := t.signer.Headers(req.Method, path, body)
	for name, value := range headers {
		clone.Header.Set(name, value)
	}

	t.logger.Debug("signed outbound request",
		slog.String("method", req.Method),
		slog.String("path", path),
		slog.String("nonce", truncateNonce(headers[t.signer.nonceHeader])),
	)

	return t.base.RoundTrip(clone)
}

// requestBody reads and drains req.Body, preferring GetBody so the
// original request stays replayable.
func requestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}

	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		return io.ReadAll(rc)
	}

	defer req.Body.Close()

	return io.ReadAll(req.Body)
}

func truncateNonce(nonce string) string {
	if len(nonce) <= 8 {
		return nonce
	}

	return nonce[:8] + "..."
}
