package server

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/appctx"
	"github.com/cuemby/burrow/pkg/log"
)

const (
	contentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self'; " +
		"img-src 'self' data:; frame-ancestors 'self'; form-action 'self'; " +
		"block-all-mixed-content; upgrade-insecure-requests"
	strictTransportSecurity = "max-age=31536000; includeSubDomains; preload"
	frameOptions            = "SAMEORIGIN"
)

// writeResponse emits one complete response: security headers, CORS headers
// for allowed origins, cookies accumulated on the frame, and the body under
// the negotiated content encoding.
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, frame *appctx.Frame, status int, contentType string, body []byte) {
	header := w.Header()
	header.Set("Content-Security-Policy", contentSecurityPolicy)
	header.Set("Strict-Transport-Security", strictTransportSecurity)
	header.Set("X-Frame-Options", frameOptions)

	s.applyCORS(header, r)

	if frame != nil {
		for _, cookie := range frame.Cookies {
			http.SetCookie(w, cookie)
		}
	}

	encoding, encoded := encodeBody(r.Header.Get("Accept-Encoding"), body)
	if encoding != "" {
		header.Set("Content-Encoding", encoding)
	}
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(encoded)))

	w.WriteHeader(status)
	if _, err := w.Write(encoded); err != nil {
		// Client gone; the deferred AfterRequest still runs.
		log.WithComponent("server").Debug().Err(err).Msg("Failed to write response body")
	}
}

// applyCORS adds access-control headers when the request origin is in the
// configured allowlist. Requests without an Origin header, and origins not
// listed, get no CORS headers at all.
func (s *Server) applyCORS(header http.Header, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", s.cfg.CORSAllowedMethods)
	header.Set("Access-Control-Allow-Headers", s.cfg.CORSAllowedHeaders)
	if s.cfg.CORSAllowCredentials {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.CORSAllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

// encodeBody compresses the body under the first supported encoding in the
// client's preference order. zstd and br are recognised but not produced;
// the negotiation falls through to gzip or deflate, else identity.
func encodeBody(acceptEncoding string, body []byte) (string, []byte) {
	if len(body) == 0 || acceptEncoding == "" {
		return "", body
	}

	for _, token := range strings.Split(acceptEncoding, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(token), ";")
		switch strings.ToLower(name) {
		case "gzip":
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(body); err == nil && zw.Close() == nil {
				return "gzip", buf.Bytes()
			}
			return "", body
		case "deflate":
			var buf bytes.Buffer
			zw, err := flate.NewWriter(&buf, flate.DefaultCompression)
			if err != nil {
				return "", body
			}
			if _, err := zw.Write(body); err == nil && zw.Close() == nil {
				return "deflate", buf.Bytes()
			}
			return "", body
		}
	}
	return "", body
}

// contentTypeFor guesses the body's media type: JSON object and array bodies
// as application/json, everything else text/plain.
func contentTypeFor(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "application/json"
	}
	return "text/plain"
}
