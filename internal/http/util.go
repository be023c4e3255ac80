package httpx

import (
	"errors"
	"net/http"
	"strconv"
)

var (
	errInternal = errors.New("internal error")
	errNotFound = errors.New("route not found")
)

// parseIntQuery reads an integer query parameter, falling back to def.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
