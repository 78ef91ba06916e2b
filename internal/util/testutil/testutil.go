package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func LoadTestDataFile(t *testing.T, filename string) []byte {
	t.Helper()

	path := filepath.Clean(filepath.Join("testdata", "api", filename))

	_, err := os.Stat(path)
	require.NoError(t, err, "test data file %s must exist", filename)

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return b
}

// AssertJSONRequest validates the method and headers of r and that every key in expectedBody
// is present in the JSON request body with an equal value. Numbers decode as float64.
func AssertJSONRequest(t *testing.T, r *http.Request, method string, expectedHeaders http.Header, expectedBody map[string]any) {
	t.Helper()

	require.Equal(t, method, r.Method, "HTTP method should match")
	require.Contains(t, r.Header.Get("Content-Type"), "application/json", "content type should be JSON")

	for header, expected := range expectedHeaders {
		require.Equal(t, expected, r.Header.Values(header), "header %s should match", header)
	}

	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), "request body should be a JSON object")

	for key, expected := range expectedBody {
		require.Contains(t, body, key, "request body should contain %s", key)
		require.Equal(t, expected, body[key], "request body field %s should match", key)
	}
}
