package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// recvWindow is the request validity window in milliseconds required by the
// v5 signed endpoints.
const recvWindow = "5000"

// sign computes the v5 request signature: HMAC-SHA256 over the canonical
// string timestamp + apiKey + recvWindow + params, hex encoded.
func sign(apiSecret, timestamp, apiKey, recv, params string) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(timestamp + apiKey + recv + params))
	return hex.EncodeToString(mac.Sum(nil))
}

// authHeaders builds the X-BAPI headers for a signed request over the given
// query string.
func (c *Client) authHeaders(params string) http.Header {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	h := http.Header{}
	h.Set("X-BAPI-API-KEY", c.apiKey)
	h.Set("X-BAPI-SIGN", sign(c.apiSecret, timestamp, c.apiKey, recvWindow, params))
	h.Set("X-BAPI-TIMESTAMP", timestamp)
	h.Set("X-BAPI-RECV-WINDOW", recvWindow)
	h.Set("Content-Type", "application/json")
	return h
}
