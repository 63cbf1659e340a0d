package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignParams 将参数按键名排序编码为查询串，并返回其 HMAC-SHA256 签名。
func SignParams(params map[string]string, secret string) (query, signature string) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	query = b.String()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	signature = hex.EncodeToString(mac.Sum(nil))
	return query, signature
}
