// Package webhook implements the inbound HTTP surface of the gateway.
//
// External systems POST event payloads to per-integration endpoints; the
// matching integration parses the payload into a chat message body, and the
// delivery service routes it into the caller's stream. The same listener
// carries the operational read endpoints (health, recent messages, SSE event
// stream) used by the watch TUI.
//
// # Security Model
//
// - Every /api/v1 endpoint requires a bot API key (api_key query parameter
//   or Authorization: Bearer header)
// - Keys are compared in constant time (crypto/subtle)
// - Auth failures return a generic 401 envelope (no detail leakage)
// - Body size limits enforced on webhook payloads
// - Request logging excludes payload bodies
//
// # Request Flow
//
//  1. HTTP POST arrives at /api/v1/external/{integration}
//  2. API key resolved to a bot identity (reject with 401 if unknown)
//  3. Body size checked (reject with 413 if too large)
//  4. Payload decoded by the integration (reject with 400 naming the
//     missing field if malformed)
//  5. Topic taken from the ?topic query parameter, or the integration's
//     default
//  6. Delivery service persists the message and notifies subscribers
//  7. 200 returned with the success envelope {"result":"success","msg":""}
//
// # Error Responses
//
// All errors are structured envelopes {"result":"error","msg":...,"code":...}:
//
//   - 401 INVALID_API_KEY: missing or unknown API key
//   - 404 UNKNOWN_INTEGRATION: no such integration endpoint
//   - 400 BAD_EVENT_PAYLOAD: body not JSON or required field missing
//   - 413 REQUEST_TOO_LARGE: body exceeds max_body_size
//   - 429 RATE_LIMITED: sender over its delivery rate limit
//   - 400/500 DELIVERY_FAILED: delivery service rejected the message
//
// No retries happen at this layer; the sending system owns resends.
package webhook
