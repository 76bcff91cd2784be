// Package crypt carries the placeholder reversible cipher used for
// chats flagged as encrypted. It is a compatibility shim for the wire
// format, not a security boundary, and is deliberately not hardened.
package crypt

import (
	"encoding/base64"
	"fmt"
)

// Apply enciphers plaintext with the chat key. Applying Strip with the
// same key restores the input.
func Apply(key, plaintext string) string {
	if key == "" {
		return plaintext
	}
	mixed := xor([]byte(plaintext), []byte(key))
	return base64.StdEncoding.EncodeToString(mixed)
}

// Strip deciphers content produced by Apply.
func Strip(key, ciphertext string) (string, error) {
	if key == "" {
		return ciphertext, nil
	}
	mixed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	return string(xor(mixed, []byte(key))), nil
}

func xor(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
