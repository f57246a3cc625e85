package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("pw")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hash == "pw" {
		t.Fatal("hash must not equal the plain password")
	}
	if !h.Verify(hash, "pw") {
		t.Fatal("expected password to verify")
	}
	if h.Verify(hash, "wrong") {
		t.Fatal("expected wrong password to fail")
	}

	again, _ := h.Hash("pw")
	if again == hash {
		t.Fatal("expected salted hashes to differ")
	}
}
