package audit

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/n-rosenthal/sala-de-leitura/internal/platform/httpx"
)

// Recorder is the append-only event sink the lending and consistency services
// report to. Recording is best effort: callers log a failed Record and carry
// on, so a broken sink never changes the outcome of the operation that is
// being recorded.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// ClientFromGin captures the caller context attached to audit entries.
func ClientFromGin(c *gin.Context) ClientContext {
	if c == nil {
		return ClientContext{}
	}
	return ClientContext{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: httpx.FromContext(c),
	}
}
