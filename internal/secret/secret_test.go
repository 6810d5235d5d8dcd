package secret

import (
	"strings"
	"testing"
)

const testHexKey = "4d3f8a1b2c5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8"

func TestNewCipher_HexKey(t *testing.T) {
	c, err := NewCipher(testHexKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	if len(c.key) != keyLen {
		t.Errorf("key length = %d, want %d", len(c.key), keyLen)
	}
}

func TestNewCipher_Passphrase(t *testing.T) {
	c1, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	c2, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	if string(c1.key) != string(c2.key) {
		t.Error("same passphrase should derive the same key")
	}
	if len(c1.key) != keyLen {
		t.Errorf("derived key length = %d, want %d", len(c1.key), keyLen)
	}
}

func TestNewCipher_Empty(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Error("NewCipher(\"\") error = nil, want error")
	}
}

func TestRoundTrip(t *testing.T) {
	c, err := NewCipher(testHexKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	tests := []string{
		"app-password-1234",
		"p@ss with spaces",
		"日本語パスワード",
		strings.Repeat("x", 500),
	}
	for _, plain := range tests {
		enc, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plain, err)
		}
		if enc == plain {
			t.Errorf("Encrypt(%q) returned plaintext", plain)
		}
		if !encryptedShape.MatchString(enc) {
			t.Errorf("Encrypt(%q) = %q, does not match encrypted shape", plain, enc)
		}
		if got := c.Decrypt(enc); got != plain {
			t.Errorf("Decrypt(Encrypt(%q)) = %q", plain, got)
		}
	}
}

func TestEncrypt_EmptyPassthrough(t *testing.T) {
	c, _ := NewCipher(testHexKey)
	enc, err := c.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt(\"\") error = %v", err)
	}
	if enc != "" {
		t.Errorf("Encrypt(\"\") = %q, want empty", enc)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	c, _ := NewCipher(testHexKey)
	e1, _ := c.Encrypt("secret")
	e2, _ := c.Encrypt("secret")
	if e1 == e2 {
		t.Error("two encryptions of the same value should differ (random nonce)")
	}
}

func TestDecrypt_LegacyPlaintext(t *testing.T) {
	c, _ := NewCipher(testHexKey)

	// Legacy credentials never match the encrypted-hex shape.
	legacy := []string{
		"old-plain-password",
		"Abcd 1234",
		"deadbeef", // hex but far too short
	}
	for _, v := range legacy {
		if got := c.Decrypt(v); got != v {
			t.Errorf("Decrypt(%q) = %q, want unchanged", v, got)
		}
	}
}

func TestDecrypt_WrongKeyPassthrough(t *testing.T) {
	c1, _ := NewCipher(testHexKey)
	c2, _ := NewCipher("another key entirely")

	enc, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	// Wrong key fails authentication; the stored value is returned intact.
	if got := c2.Decrypt(enc); got != enc {
		t.Errorf("Decrypt with wrong key = %q, want stored value back", got)
	}
}
