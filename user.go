package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID      string    `json:"id"`
	Email   string    `json:"email"`
	Key     string    `json:"key"`
	Hash    []byte    `json:"hash"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Admin   bool      `json:"admin"`
}

type Token struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Hash      []byte    `json:"hash"`
}

func generateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	hashed := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(hashed[:]), nil
}

func NewUser(email, password string, admin bool) (*User, error) {
	key, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:      uuid.New().String(),
		Email:   email,
		Key:     key,
		Created: time.Now(),
		Updated: time.Now(),
		Admin:   admin,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Hash = hash
	u.Updated = time.Now()
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.Hash, []byte(password)) == nil
}

func (u *User) MarshalBinary() ([]byte, error) {
	return json.Marshal(u)
}

func (u *User) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, u)
}

func NewToken(email string, ttl time.Duration) (*Token, error) {
	tk := &Token{
		Email:     email,
		ExpiresAt: time.Now().Add(ttl),
	}
	salt := make([]byte, 64)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	tk.Token = uuid.New().String()
	hash := sha256.Sum256(append([]byte(tk.Token), salt...))
	tk.Hash = hash[:]
	return tk, nil
}

func (t *Token) MarshalBinary() ([]byte, error) {
	return json.Marshal(t)
}

func (t *Token) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, t)
}
