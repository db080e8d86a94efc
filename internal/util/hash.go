package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

func SHA256HexFromReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// ContentHash is the content address of text that will be embedded.
func ContentHash(text string) string {
	return SHA256Hex([]byte(text))
}

// ChunkID derives the persisted chunk key from its document, position and text.
func ChunkID(documentID int64, ordinal int, contentHash string) string {
	return SHA256Hex([]byte(fmt.Sprintf("%d:%d:%s", documentID, ordinal, contentHash)))
}
