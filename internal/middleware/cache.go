package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-sales-engine/internal/config"
)

// ResponseCache caches successful GET responses in Redis.  Entries are
// grouped by scope (a branch id); every key embeds the scope's current
// generation, so Invalidate drops a whole scope with one INCR and stale
// entries simply expire.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log zerolog.Logger
}

// NewResponseCache returns a cache.  With a nil client or a disabled
// config every method is a no-op.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log zerolog.Logger) *ResponseCache {
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log.With().Str("component", "cache").Logger()}
}

func (rc *ResponseCache) enabled() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

func (rc *ResponseCache) generationKey(scope string) string {
	return fmt.Sprintf("%s:gen:%s", rc.cfg.Prefix, scope)
}

// Invalidate drops every cached response of scope.
func (rc *ResponseCache) Invalidate(ctx context.Context, scope string) {
	if !rc.enabled() {
		return
	}
	if err := rc.rdb.Incr(ctx, rc.generationKey(scope)).Err(); err != nil {
		rc.log.Warn().Err(err).Str("scope", scope).Msg("cache invalidate failed")
	}
}

// Middleware caches GET responses, scoped by the named path parameter.
func (rc *ResponseCache) Middleware(scopeParam string) echo.MiddlewareFunc {
	if !rc.enabled() {
		return passThrough
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			scope := c.Param(scopeParam)
			gen, err := rc.rdb.Get(ctx, rc.generationKey(scope)).Int64()
			if err != nil && err != redis.Nil {
				return next(c)
			}
			key := cacheKey(rc.cfg.Prefix, scope, gen, c.Path(), c.Request().URL.RawQuery, userKey(c))

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, _ = c.Response().Write(body)
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || cw.truncated {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := rc.rdb.SetEx(context.Background(), key, payload, rc.cfg.TTL).Err(); err != nil {
				rc.log.Warn().Err(err).Msg("cache store failed")
			}
			return nil
		}
	}
}

// cacheKey hashes everything but the prefix.  The caller is part of the
// key because listings are filtered by identity.
func cacheKey(prefix, scope string, gen int64, route, query, user string) string {
	tail := strings.Join([]string{"scope", scope, "gen", fmt.Sprint(gen), "route", route, "q", query, "user", user}, ":")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%x", prefix, sum[:])
}

// captureWriter tees the response body, up to limit bytes, while
// forwarding it to the client.
type captureWriter struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.truncated {
		if cw.limit > 0 && int64(cw.buf.Len()+len(b)) > cw.limit {
			cw.truncated = true
			cw.buf.Reset()
		} else {
			cw.buf.Write(b)
		}
	}
	return cw.ResponseWriter.Write(b)
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (int, http.Header, []byte, bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}
