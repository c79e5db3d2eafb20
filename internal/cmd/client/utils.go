package client

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"unicode/utf8"

	"github.com/rzbill/flolog/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// DefaultBaseURL returns FLOLOG_HTTP or the local default.
func DefaultBaseURL() string {
	if u := os.Getenv("FLOLOG_HTTP"); u != "" {
		return u
	}
	return "http://127.0.0.1:8080"
}

// newTransport is swapped in tests.
var newTransport = func(baseURL BaseURLFunc) transports.LogsTransport {
	return transports.NewHTTPTransport(baseURL(), nil)
}

// decodedMessage returns a map with partition, offset and one of
// payload_json, payload_text, or payload_b64.
func decodedMessage(partition int, offset int64, payload []byte) map[string]any {
	out := map[string]any{
		"partition": partition,
		"offset":    offset,
	}
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}
