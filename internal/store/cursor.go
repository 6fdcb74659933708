package store

import (
	"encoding/base64"
	"fmt"
)

// Los tokens de continuación son opacos para el caller: base64 URL-safe de
// la última clave vista. Ambos backends escanean en orden de clave, así que
// retomar desde la última clave no repite ni saltea filas existentes.

// EncodeCursor serializa la última clave vista como token opaco.
// Una clave vacía produce token vacío (fin de scan).
func EncodeCursor(lastKey string) string {
	if lastKey == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(lastKey))
}

// DecodeCursor recupera la última clave vista desde un token.
// Token vacío significa "desde el principio".
func DecodeCursor(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid continuation token: %w", err)
	}
	return string(b), nil
}
