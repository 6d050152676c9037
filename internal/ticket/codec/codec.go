// Package codec encodes ticket payloads into opaque encrypted credentials
// suitable for embedding in a QR image.
//
// The scheme is symmetric-key confidentiality, not a signature: anyone
// holding the key can mint credentials. A fresh random nonce per call means
// encoding the same payload twice never yields the same string.
package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
)

// Codec encrypts and decrypts ticket payloads with a pre-shared key.
type Codec struct {
	aeadKey [chacha20poly1305.KeySize]byte
}

// New derives a fixed-size AEAD key from the configured secret. Any
// non-empty secret is accepted; key stretching is not a goal here.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("codec secret is required")
	}
	c := &Codec{aeadKey: sha256.Sum256([]byte(secret))}
	return c, nil
}

// Encode serializes the payload and encrypts it under the shared key.
// The nonce is prepended to the ciphertext and the whole blob is base64
// encoded. A serialization failure is a programmer error and panics.
func (c *Codec) Encode(payload models.TicketPayload) string {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		// TicketPayload contains only marshalable fields; reaching this
		// means the type itself is broken.
		panic(fmt.Sprintf("marshal ticket payload: %v", err))
	}

	aead, err := chacha20poly1305.New(c.aeadKey[:])
	if err != nil {
		panic(fmt.Sprintf("construct aead: %v", err))
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		panic(fmt.Sprintf("read nonce: %v", err))
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// Decode decrypts and parses a credential. It returns an error wrapping
// sentinel.ErrInvalidCredential when the ciphertext is malformed, the key
// does not match, or a required field is missing after parse. Unknown
// fields and schema version mismatches are tolerated.
func (c *Codec) Decode(credential string) (models.TicketPayload, error) {
	var payload models.TicketPayload

	sealed, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		return payload, fmt.Errorf("%w: not base64", sentinel.ErrInvalidCredential)
	}

	aead, err := chacha20poly1305.New(c.aeadKey[:])
	if err != nil {
		panic(fmt.Sprintf("construct aead: %v", err))
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return payload, fmt.Errorf("%w: truncated ciphertext", sentinel.ErrInvalidCredential)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return payload, fmt.Errorf("%w: decryption failed", sentinel.ErrInvalidCredential)
	}

	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return payload, fmt.Errorf("%w: malformed payload", sentinel.ErrInvalidCredential)
	}
	if payload.GuestID == "" || payload.GuestName == "" || payload.GuestEmail == "" {
		return models.TicketPayload{}, fmt.Errorf("%w: missing required guest fields", sentinel.ErrInvalidCredential)
	}
	return payload, nil
}
