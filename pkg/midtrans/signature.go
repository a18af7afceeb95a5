package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Signature computes the notification signature:
// hex(SHA-512(order_id + status_code + gross_amount + server_key)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature reports whether the notification was signed with serverKey.
func VerifySignature(n Notification, serverKey string) bool {
	if serverKey == "" || n.SignatureKey == "" {
		return false
	}
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	given := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
