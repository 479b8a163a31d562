package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// maxSignatureSkew bounds how old a signed request may be. Requests outside
// the window are treated as replays.
const maxSignatureSkew = 5 * time.Minute

// maxSignedBodySize caps how much of an inbound payload is read for
// verification. Slack payloads are far smaller in practice.
const maxSignedBodySize = 1 << 20

// VerifySignature authenticates inbound webhooks using the Slack signing
// scheme: HMAC-SHA256 over "v0:<timestamp>:<body>" with the signing secret,
// compared against the X-Slack-Signature header. The body is re-buffered
// for downstream handlers.
func VerifySignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		timestamp := c.GetHeader("X-Slack-Request-Timestamp")
		signature := c.GetHeader("X-Slack-Signature")
		if timestamp == "" || signature == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing signature headers"})
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid timestamp"})
			return
		}

		age := time.Since(time.Unix(ts, 0))
		if age > maxSignatureSkew || age < -maxSignatureSkew {
			slog.WarnContext(ctx, "stale signed request rejected", "age_seconds", int64(age.Seconds()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "stale request"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBodySize))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte("v0:" + timestamp + ":"))
		mac.Write(body)
		expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(signature)) {
			slog.WarnContext(ctx, "webhook signature mismatch", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Next()
	}
}
