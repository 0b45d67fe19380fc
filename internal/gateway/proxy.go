// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/retrypolicy"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/telemetry"
)

// hopByHop headers are connection-scoped and must not cross the proxy,
// in either direction.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// handleProxy is the terminal handler: it resolves the partner and its
// credential, rebuilds the outbound URL inside the partner's origin,
// scrubs and re-signs headers, runs the bounded retry loop under the
// policy deadline, and streams the upstream response back. Every
// terminal outcome below this line records exactly one usage event.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// CONNECT and TRACE enable tunneling and reflection; this is a
	// routing-layer rejection, before any usage attribution.
	if r.Method == http.MethodConnect || r.Method == http.MethodTrace {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	auth, ok := AuthFrom(ctx)
	if !ok {
		http.Error(w, "missing auth context", http.StatusInternalServerError)
		return
	}

	partnerParam := chi.URLParam(r, "partner")
	tail := chi.URLParam(r, "*")
	inboundPath := r.URL.Path
	log := zerolog.Ctx(ctx)

	// block finalizes a non-forwarded outcome: one usage event, one
	// plaintext response. Bodies never echo upstream details.
	block := func(reason store.BlockedReason, status int, msg string) {
		s.usage.Record(ctx, store.UsageEvent{
			VirtualKeyID:  auth.VirtualKey.ID,
			PartnerName:   partnerParam,
			Path:          inboundPath,
			Forwarded:     false,
			BlockedReason: reason,
			LatencyMS:     s.clock.Since(auth.Start).Milliseconds(),
		})
		http.Error(w, msg, status)
	}

	partner, err := s.store.PartnerByName(ctx, partnerParam)
	if err != nil {
		log.Error().Err(err).Msg("partner lookup failed")
		block(store.BlockDBError, http.StatusInternalServerError, "db error")
		return
	}
	if partner == nil {
		block(store.BlockUnknownPartner, http.StatusNotFound, "unknown partner")
		return
	}

	cred, err := s.store.CredentialForPartner(ctx, partner.ID)
	if err != nil {
		log.Error().Err(err).Msg("credential lookup failed")
		block(store.BlockDBError, http.StatusInternalServerError, "db error")
		return
	}
	if cred == nil {
		block(store.BlockMissingUpstreamCredential, http.StatusInternalServerError, "missing upstream credential")
		return
	}

	base, err := url.Parse(partner.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		block(store.BlockInvalidPartnerBaseURL, http.StatusInternalServerError, "invalid partner base_url")
		return
	}

	// Pre-join guard: an absolute URL smuggled into the tail would
	// survive a naive join. Defense-in-depth before reconstruction.
	tailLC := strings.ToLower(tail)
	if strings.HasPrefix(tailLC, "http://") || strings.HasPrefix(tailLC, "https://") {
		block(store.BlockSSRFBlocked, http.StatusBadRequest, "blocked by SSRF guard")
		return
	}

	fwd := "/" + tail
	if q := r.URL.RawQuery; q != "" {
		fwd += "?" + q
	}
	ref, err := url.Parse(fwd)
	if err != nil {
		block(store.BlockInvalidUpstreamPath, http.StatusBadRequest, "invalid upstream path")
		return
	}
	joined := base.ResolveReference(ref)

	// Post-join guard: the resolved URL must stay on the partner's
	// exact origin (scheme, host, effective port).
	if !sameOrigin(joined, base) {
		block(store.BlockSSRFBlocked, http.StatusBadRequest, "blocked by SSRF guard")
		return
	}

	// One scrubbed header set for the whole request; every attempt
	// re-sends exactly these bytes.
	outHeaders := scrubHeaders(r.Header)

	if !validHeaderName(cred.HeaderName) {
		block(store.BlockInvalidCredentialHeaderName, http.StatusInternalServerError, "invalid credential header_name")
		return
	}
	if !validHeaderValue(cred.HeaderValue) {
		block(store.BlockInvalidCredentialHeaderVal, http.StatusInternalServerError, "invalid credential header_value")
		return
	}
	outHeaders.Set(cred.HeaderName, cred.HeaderValue)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			// Router-level cap, same as CONNECT/TRACE: not attributed.
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		block(store.BlockInvalidUpstreamPath, http.StatusBadRequest, "invalid request body")
		return
	}

	s.runAttempts(w, r, auth, attemptInput{
		partnerName: partner.Name,
		inboundPath: inboundPath,
		url:         joined,
		headers:     outHeaders,
		body:        body,
	})
}

type attemptInput struct {
	partnerName string
	inboundPath string
	url         *url.URL
	headers     http.Header
	body        []byte
}

// runAttempts is the sending state machine: at most MaxAttempts sends,
// retries gated on idempotency, classification, the partner profile and
// the dual budget, all of it under the policy's total deadline.
func (s *Server) runAttempts(w http.ResponseWriter, r *http.Request, auth *RequestAuth, in attemptInput) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	block := func(reason store.BlockedReason, status int, msg string) {
		s.usage.Record(ctx, store.UsageEvent{
			VirtualKeyID:  auth.VirtualKey.ID,
			PartnerName:   in.partnerName,
			Path:          in.inboundPath,
			Forwarded:     false,
			BlockedReason: reason,
			LatencyMS:     s.clock.Since(auth.Start).Milliseconds(),
		})
		http.Error(w, msg, status)
	}

	idempotent := r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions
	profile := s.profiles.ProfileFor(ctx, in.partnerName)
	deadline := auth.Start.Add(time.Duration(auth.Policy.TimeoutMS) * time.Millisecond)

	// mayRetry decides one more attempt after a retryable failure. An
	// exhausted deadline short-circuits before the budget so the unit
	// is not wasted on a retry that can never be sent.
	mayRetry := func(attempt int) bool {
		if !idempotent || attempt >= s.retryPolicy.MaxAttempts {
			return false
		}
		if !deadline.After(s.clock.Now()) {
			return false
		}
		d := s.retryBudget.AllowRetryDual(ctx, in.partnerName, auth.VirtualKey.ID)
		telemetry.ObserveRetryDecision(d.Allowed)
		if !d.Allowed {
			log.Warn().Str("reason", d.Reason).Str("partner", in.partnerName).
				Msg("retry denied by budget")
		}
		return d.Allowed
	}

	for attempt := 1; ; attempt++ {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			block(store.BlockUpstreamRequestFailed, http.StatusGatewayTimeout, "gateway timeout")
			return
		}

		actx, cancel := context.WithTimeout(ctx, remaining)

		out, err := http.NewRequestWithContext(actx, r.Method, in.url.String(), bytes.NewReader(in.body))
		if err != nil {
			cancel()
			block(store.BlockInvalidUpstreamPath, http.StatusBadRequest, "invalid upstream path")
			return
		}
		out.Header = in.headers.Clone()
		if len(in.body) == 0 {
			out.Body = http.NoBody
		}

		telemetry.ObserveUpstreamAttempt()
		resp, err := s.httpClient.Do(out)
		if err != nil {
			cancel()
			if retrypolicy.ClassifyTransport(err) == retrypolicy.Retryable && mayRetry(attempt) {
				s.clock.Sleep(s.retryPolicy.Backoff(attempt))
				continue
			}
			if s.clock.Now().After(deadline) || errors.Is(err, context.DeadlineExceeded) {
				block(store.BlockUpstreamRequestFailed, http.StatusGatewayTimeout, "gateway timeout")
				return
			}
			log.Warn().Err(err).Str("partner", in.partnerName).Int("attempt", attempt).
				Msg("upstream request failed")
			block(store.BlockUpstreamRequestFailed, http.StatusBadGateway, "upstream request failed")
			return
		}

		if retrypolicy.ClassifyStatus(resp.StatusCode) == retrypolicy.Retryable &&
			retrypolicy.StatusRetryAllowed(profile, resp.StatusCode) &&
			mayRetry(attempt) {
			_ = resp.Body.Close()
			cancel()
			s.clock.Sleep(s.retryPolicy.Backoff(attempt))
			continue
		}

		// Terminal response: stream it through.
		s.passThrough(w, r, auth, in, resp)
		_ = resp.Body.Close()
		cancel()
		return
	}
}

// passThrough copies the upstream response to the client: status as-is,
// headers minus hop-by-hop and set-cookie, body streamed without
// buffering. The usage event is recorded once the copy is done so
// latency covers the full transfer.
func (s *Server) passThrough(w http.ResponseWriter, r *http.Request, auth *RequestAuth, in attemptInput, resp *http.Response) {
	for name, vals := range resp.Header {
		lc := strings.ToLower(name)
		if hopByHop[lc] || lc == "set-cookie" {
			continue
		}
		for _, v := range vals {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Status is already on the wire; nothing to change but the log.
		zerolog.Ctx(r.Context()).Warn().Err(err).
			Str("partner", in.partnerName).
			Msg("response stream interrupted")
	}

	s.usage.Record(r.Context(), store.UsageEvent{
		VirtualKeyID: auth.VirtualKey.ID,
		PartnerName:  in.partnerName,
		Path:         in.inboundPath,
		Forwarded:    true,
		StatusCode:   resp.StatusCode,
		LatencyMS:    s.clock.Since(auth.Start).Milliseconds(),
	})
}

// scrubHeaders copies inbound headers minus everything that must not
// cross the proxy: gateway-internal headers, hop-by-hop headers, and
// client credentials (authorization, cookie, proxy-*).
func scrubHeaders(in http.Header) http.Header {
	out := http.Header{}
	for name, vals := range in {
		lc := strings.ToLower(name)
		switch {
		case lc == "host" || lc == "x-relaykey" || lc == "x-request-id":
			continue
		case hopByHop[lc]:
			continue
		case lc == "authorization" || lc == "cookie":
			continue
		case strings.HasPrefix(lc, "proxy-"):
			continue
		}
		for _, v := range vals {
			out.Add(name, v)
		}
	}
	return out
}

// sameOrigin compares (scheme, host, effective port).
func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme &&
		a.Hostname() == b.Hostname() &&
		effectivePort(a) == effectivePort(b)
}

// effectivePort resolves the default port for http/https when none is
// explicit.
func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch u.Scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// validHeaderName accepts RFC 7230 token characters only.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// validHeaderValue rejects control bytes that would split the header.
func validHeaderValue(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\r' || c == '\n' || (c < 0x20 && c != '\t') || c == 0x7f {
			return false
		}
	}
	return true
}
