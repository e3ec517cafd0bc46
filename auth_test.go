package sitemeta

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken("secret", "sam", "editor", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	claims, err := ParseToken("secret", tok)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.Subject != "sam" || claims.Role != "editor" || claims.Issuer != "sitemeta" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken("", "sam", "", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestParseTokenRejects(t *testing.T) {
	good, _ := IssueToken("secret", "sam", "", time.Hour)
	expired, _ := IssueToken("secret", "sam", "", -time.Minute)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "sam"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "sam"}).
		SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]struct{ secret, token string }{
		"wrong secret": {"other", good},
		"expired":      {"secret", expired},
		"alg none":     {"secret", none},
		"other hmac":   {"secret", hs512},
		"garbage":      {"secret", "not.a.token"},
		"tampered":     {"secret", good[:strings.LastIndexByte(good, '.')] + ".AAAA"},
	}
	for name, tt := range tests {
		if _, err := ParseToken(tt.secret, tt.token); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
