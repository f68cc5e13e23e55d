package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"brewery-production-backend/internal/appctx"
)

// CacheHeader marks responses replayed from the lookup cache.
const CacheHeader = "X-Cache"

type cachedLookup struct {
	status      int
	contentType string
	body        []byte
}

func (l cachedLookup) replay(c *gin.Context) {
	c.Header(CacheHeader, "HIT")
	c.Data(l.status, l.contentType, l.body)
	c.Abort()
}

// recordingWriter tees the response body so it can be stored after the
// handler returns.
type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// lookupKey separates tenants so one tenant never sees another's cached body.
func lookupKey(c *gin.Context) string {
	tenantID, _ := appctx.TenantID(c.Request.Context())
	return tenantID + "|" + c.Request.RequestURI
}

// Cache serves repeated GET requests for static lookups from memory.
// Only 2xx responses are stored.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := lookupKey(c)
		if hit, ok := store.Get(key); ok {
			hit.(cachedLookup).replay(c)
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < 200 || status >= 300 {
			return
		}
		store.Set(key, cachedLookup{
			status:      status,
			contentType: rec.Header().Get("Content-Type"),
			body:        bytes.Clone(rec.buf.Bytes()),
		}, ttl)
	}
}
