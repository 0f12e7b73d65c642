package main

import (
	"testing"
	"time"
)

func TestGenerateAPIKey(t *testing.T) {
	key1, err := generateAPIKey()
	if err != nil {
		t.Fatalf("generateAPIKey: %v", err)
	}
	// base64 of a sha256 digest is always 44 characters.
	if len(key1) != 44 {
		t.Errorf("key length = %d; want 44", len(key1))
	}

	key2, err := generateAPIKey()
	if err != nil {
		t.Fatalf("generateAPIKey: %v", err)
	}
	if key1 == key2 {
		t.Errorf("two keys came out identical")
	}
}

func TestNewUser(t *testing.T) {
	user, err := NewUser("tester@example.com", "hunter22", true)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if user.ID == "" {
		t.Errorf("user has no id")
	}
	if user.Email != "tester@example.com" {
		t.Errorf("email = %s; want tester@example.com", user.Email)
	}
	if user.Key == "" {
		t.Errorf("user has no API key")
	}
	if !user.Admin {
		t.Errorf("admin flag not set")
	}
	if !user.CheckPassword("hunter22") {
		t.Errorf("correct password rejected")
	}
	if user.CheckPassword("wrong") {
		t.Errorf("wrong password accepted")
	}
}

func TestUserBinaryRoundTrip(t *testing.T) {
	user, err := NewUser("tester@example.com", "hunter22", false)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	data, err := user.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var got User
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Email != user.Email || got.Key != user.Key {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.CheckPassword("hunter22") {
		t.Errorf("password hash did not survive the round trip")
	}
}

func TestNewToken(t *testing.T) {
	tk, err := NewToken("tester@example.com", time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if tk.Token == "" {
		t.Errorf("token value is empty")
	}
	if tk.Email != "tester@example.com" {
		t.Errorf("email = %s; want tester@example.com", tk.Email)
	}
	if len(tk.Hash) != 32 {
		t.Errorf("hash length = %d; want 32", len(tk.Hash))
	}
	until := time.Until(tk.ExpiresAt)
	if until < 59*time.Minute || until > 61*time.Minute {
		t.Errorf("expiry = %v from now; want about an hour", until)
	}
}
