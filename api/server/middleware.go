package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	ratelimit "github.com/harmony-one/metachain/internal/rate"
	"github.com/harmony-one/metachain/internal/utils"
)

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

func noopMiddleware(h http.Handler) http.Handler { return h }

// NewCORS returns the CORS layer for origin. An empty origin disables it and every
// origin is accepted. Otherwise requests carrying a different Origin header are
// rejected with 403 before reaching the handler.
func NewCORS(origin string) Middleware {
	if origin == "" {
		return noopMiddleware
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: origin != "*",
		MaxAge:           600,
	})
	return func(next http.Handler) http.Handler {
		h := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqOrigin := r.Header.Get("Origin"); reqOrigin != "" && !originAllowed(origin, reqOrigin) {
				utils.Logger().Debug().
					Str("origin", reqOrigin).
					Str("path", r.URL.Path).
					Msg("rejected cross origin request")
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed, origin string) bool {
	return allowed == "*" || strings.EqualFold(allowed, origin)
}

// error returned to json-rpc clients in place of an oversized response
const (
	errCodeResponseTooBig = -32008
	errMsgResponseTooBig  = "Response is too big"

	maxRequestBodySize = 5 * 1024 * 1024
)

type jsonError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonErrResponse struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   jsonError       `json:"error"`
}

// NewResponseLimit caps the size of json-rpc responses. A response larger than limit
// bytes is replaced by a json-rpc error carrying the request id.
func NewResponseLimit(limit int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := json.RawMessage("null")
			if r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
				r.Body.Close()
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				id = requestID(body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			lw := &limitedWriter{ResponseWriter: w, limit: limit, status: http.StatusOK}
			next.ServeHTTP(lw, r)

			if lw.overflow {
				utils.Logger().Warn().
					Int("limit", limit).
					Str("remote", r.RemoteAddr).
					Msg("[RPC] response too big")
				resp, _ := json.Marshal(jsonErrResponse{
					Version: "2.0",
					ID:      id,
					Error:   jsonError{Code: errCodeResponseTooBig, Message: errMsgResponseTooBig},
				})
				w.Header().Set("Content-Type", "application/json")
				w.Header().Del("Content-Length")
				w.WriteHeader(http.StatusOK)
				w.Write(resp)
				return
			}
			w.WriteHeader(lw.status)
			w.Write(lw.buf.Bytes())
		})
	}
}

// requestID extracts the id of a single json-rpc request. Batches get a null id.
func requestID(body []byte) json.RawMessage {
	var msg struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &msg); err != nil || len(msg.ID) == 0 {
		return json.RawMessage("null")
	}
	return msg.ID
}

type limitedWriter struct {
	http.ResponseWriter
	limit    int
	status   int
	overflow bool
	buf      bytes.Buffer
}

func (lw *limitedWriter) WriteHeader(status int) {
	lw.status = status
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.overflow {
		return len(p), nil
	}
	if lw.buf.Len()+len(p) > lw.limit {
		lw.overflow = true
		lw.buf.Reset()
		return len(p), nil
	}
	return lw.buf.Write(p)
}

// IPRateLimit limits the requests per second of every remote ip.
type IPRateLimit struct {
	limiter ratelimit.IDLimiter
}

// NewIPRateLimit allows rps requests per second, with the same burst, per remote ip.
func NewIPRateLimit(rps int) *IPRateLimit {
	return &IPRateLimit{
		limiter: ratelimit.NewLimiterPerID(rate.Limit(rps), rps, nil),
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *IPRateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.limiter.AllowN(ip, 1) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close releases the limiter.
func (rl *IPRateLimit) Close() {
	rl.limiter.Close()
}
