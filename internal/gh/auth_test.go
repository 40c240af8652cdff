package gh

import (
	"strings"
	"testing"
)

func TestSignJWTRejectsBadKey(t *testing.T) {
	auth := &AppAuth{AppID: "1234", PrivateKey: "not a pem block"}
	if _, err := auth.signJWT(); err == nil || !strings.Contains(err.Error(), "private key") {
		t.Errorf("err = %v, want private key parse failure", err)
	}
}

func TestSignJWTRejectsEmptyKey(t *testing.T) {
	auth := &AppAuth{AppID: "1234", PrivateKey: ""}
	if _, err := auth.signJWT(); err == nil {
		t.Error("expected error for empty key")
	}
}
