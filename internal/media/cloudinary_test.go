package media

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"notification_type":"upload","public_id":"merchants/m-1/shopfront"}`)
	timestamp := "1764500000"
	secret := "shh-secret"

	sum := sha1.Sum(append(append([]byte{}, body...), []byte(timestamp+secret)...))
	good := hex.EncodeToString(sum[:])

	if !VerifySignature(body, timestamp, good, secret) {
		t.Fatalf("valid signature rejected")
	}
	if VerifySignature(body, timestamp, good, "other-secret") {
		t.Fatalf("signature accepted with wrong secret")
	}
	if VerifySignature(body, "1764500001", good, secret) {
		t.Fatalf("signature accepted with altered timestamp")
	}
	if VerifySignature(body, timestamp, "", secret) {
		t.Fatalf("empty signature accepted")
	}
	if VerifySignature(append(body, 'x'), timestamp, good, secret) {
		t.Fatalf("signature accepted with altered body")
	}
}
