package http

import (
	"net/http"
)

// NotFoundHandler is the mux fallback. It names the missing route so
// storefront integrators see which path they mistyped.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no route for "+r.URL.Path)
	})
}
