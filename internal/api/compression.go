package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

func compressionMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
