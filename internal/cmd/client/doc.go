// Package client provides the `flolog` command-line client.
//
// The CLI talks to the flolog admin HTTP API. The base URL is supplied by
// the embedding application through a BaseURLFunc; DefaultBaseURL reads
// FLOLOG_HTTP and falls back to http://127.0.0.1:8080.
//
// Usage
//
//	flolog log create orders --partitions 4
//	flolog log list
//	flolog log append orders --key customer-42 --data '{"total":12}'
//	echo hello | flolog log append orders --partition 1
//
//	# tail as a group; a fresh group is used when --group is not set
//	flolog log tail orders --group billing --commit
//	flolog log tail orders --from start --limit 10 \
//	    --filter 'json != null && json.total > 10'
//
//	flolog log lag orders --group billing
//	flolog log groups orders
//	flolog log delete orders --confirm
//
// Notes
//
//   - tail prints one JSON object per record with partition, offset and
//     one of payload_json, payload_text or payload_b64.
//   - --filter is a CEL expression evaluated client side over partition,
//     offset, size, text, json and now_ms.
package client
