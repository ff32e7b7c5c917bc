// Package ratelimit counts requests per key in fixed windows stored in the
// database, so limits hold across restarts and across instances.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Limiter allows at most Limit hits per key in each Window.
type Limiter struct {
	DB     *gorm.DB
	Name   string
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

func New(db *gorm.DB, name string, limit int, window time.Duration) *Limiter {
	return &Limiter{DB: db, Name: name, Limit: limit, Window: window}
}

// Result describes one Allow call.
type Result struct {
	Allowed    bool
	Hits       int
	Remaining  int
	RetryAfter time.Duration
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Limiter) window() time.Duration {
	if l.Window > 0 {
		return l.Window
	}
	return time.Minute
}

// Allow records a hit for key and reports whether it is within the limit.
// A limit of zero or less disables limiting.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	if l.Limit <= 0 {
		return Result{Allowed: true}, nil
	}
	now := l.now()
	win := l.window()
	start := now.Truncate(win)
	end := start.Add(win)
	bucketKey := fmt.Sprintf("%s:%s:%d", l.Name, key, start.Unix())

	bucket := models.RateLimitBucket{Key: bucketKey, Hits: 1, ExpiresAt: end}
	db := l.DB.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{"hits": gorm.Expr("rate_limit_buckets.hits + 1")}),
	}).Create(&bucket).Error
	if err != nil {
		return Result{}, err
	}
	var stored models.RateLimitBucket
	if err := db.Where(&models.RateLimitBucket{Key: bucketKey}).First(&stored).Error; err != nil {
		return Result{}, err
	}

	res := Result{Hits: stored.Hits, Allowed: stored.Hits <= l.Limit}
	if res.Allowed {
		res.Remaining = l.Limit - stored.Hits
	} else {
		res.RetryAfter = end.Sub(now)
	}
	return res, nil
}

// Cleanup removes expired buckets.
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	res := l.DB.WithContext(ctx).Where("expires_at < ?", l.now()).Delete(&models.RateLimitBucket{})
	return res.RowsAffected, res.Error
}

// ClientIP keys requests by the address of the connected peer. Forwarding
// headers are ignored since any client can set them.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIPBehind keys requests for a server running behind reverse proxies.
// X-Forwarded-For is only read when the peer is one of trusted, and the
// client is the right-most hop that is not itself a trusted proxy.
func ClientIPBehind(trusted []netip.Prefix) func(*http.Request) string {
	if len(trusted) == 0 {
		return ClientIP
	}
	isTrusted := func(s string) bool {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}
	return func(r *http.Request) string {
		peer := ClientIP(r)
		if !isTrusted(peer) {
			return peer
		}
		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !isTrusted(hop) {
				return hop
			}
		}
		return peer
	}
}

// Middleware answers 429 once a client exceeds the limit. Storage errors let
// the request through.
func (l *Limiter) Middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), key(r))
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("limiter", l.Name).Msg("rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				secs := int(res.RetryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				httpx.Error(w, r, apperr.ErrRateLimited)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
