package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressionMiddleware encodes responses with zstd or gzip when the client
// accepts it. zstd wins when both are offered.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		w.Header().Add("Vary", "Accept-Encoding")
		if encoding == "" {
			next.ServeHTTP(w, r)
			return
		}

		var enc io.WriteCloser
		switch encoding {
		case "zstd":
			zw, err := zstd.NewWriter(w)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			enc = zw
		case "gzip":
			enc = gzip.NewWriter(w)
		}
		defer enc.Close()

		w.Header().Set("Content-Encoding", encoding)
		next.ServeHTTP(&compressWriter{ResponseWriter: w, enc: enc}, r)
	})
}

type compressWriter struct {
	http.ResponseWriter
	enc io.Writer
}

func (w *compressWriter) WriteHeader(status int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressWriter) Write(b []byte) (int, error) {
	return w.enc.Write(b)
}

func negotiateEncoding(header string) string {
	var gzipOK, zstdOK bool
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "zstd":
			zstdOK = true
		case "gzip":
			gzipOK = true
		}
	}

	switch {
	case zstdOK:
		return "zstd"
	case gzipOK:
		return "gzip"
	}
	return ""
}
