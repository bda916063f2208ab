package restapi

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

type CompressionConfig struct {
	MinSize int // bytes
	Level   int // 1-9
}

func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{MinSize: 1024, Level: 6}
}

// NewCompressionMiddleware gzips responses. WebSocket upgrades bypass it since the
// gzip writer cannot be hijacked.
func NewCompressionMiddleware(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapper, err := gzhttp.NewWrapper(
			gzhttp.MinSize(config.MinSize),
			gzhttp.CompressionLevel(config.Level),
		)
		var compressed http.Handler
		if err != nil {
			compressed = gzhttp.GzipHandler(next)
		} else {
			compressed = wrapper(next)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}

func CompressionMiddleware(next http.Handler) http.Handler {
	return NewCompressionMiddleware(DefaultCompressionConfig())(next)
}
