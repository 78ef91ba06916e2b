package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type HTTPTestRoute struct {
	Method  string
	URL     string // URL pattern (e.g., "/accounts/get"). Must not be empty.
	Handler http.HandlerFunc
}

func NewHTTPTestServer(t *testing.T, routes []HTTPTestRoute) *httptest.Server {
	t.Helper()

	router := http.NewServeMux()

	for _, route := range routes {
		if route.URL == "" {
			t.Fatalf("HTTPTestRoute.URL must not be empty")
		}

		method := strings.ToUpper(strings.TrimSpace(route.Method))
		if method == "" {
			t.Fatalf("HTTPTestRoute.Method must not be empty")
		}

		if route.Handler == nil {
			t.Fatalf("HTTPTestRoute.Handler must not be nil for route %s", route.URL)
		}

		router.HandleFunc(fmt.Sprintf("%s %s", method, route.URL), route.Handler)
	}

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server
}

// ServeJSONTestDataHandler responds with the contents of testdata/api/<filename>.
func ServeJSONTestDataHandler(t *testing.T, statusCode int, filename string) http.HandlerFunc {
	t.Helper()

	return ServeJSON(statusCode, string(LoadTestDataFile(t, filename)))
}

// ServeJSON responds with a fixed JSON body.
func ServeJSON(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
}

// CountingHandler wraps next and counts how many requests it served.
func CountingHandler(count *atomic.Int32, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		next(w, r)
	}
}
