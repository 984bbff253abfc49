package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// markupChars never appear in an email, company ID or plan, the only
// query parameters this API reads.
const markupChars = `<>"'`

// ValidateJSONContentType rejects request bodies that are not declared as
// JSON. Bodiless requests such as logout and refresh pass through.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn("rejected non-json body",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("content_type", contentType),
			)
			writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		})
	}
}

// SanitizeInputs rejects query values carrying markup and paths with
// traversal or empty segments.
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path", slog.String("path", r.URL.Path))
				writeError(w, http.StatusBadRequest, "invalid path")
				return
			}

			for param, values := range r.URL.Query() {
				for _, v := range values {
					if strings.ContainsAny(v, markupChars) {
						log.Warn("suspicious query value",
							slog.String("path", r.URL.Path),
							slog.String("param", param),
						)
						writeError(w, http.StatusBadRequest, "invalid input: dangerous characters detected")
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return r.ContentLength != 0
	}
	return false
}
