// Package idgen genera claves cortas y seguras para URL respaldadas por nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet es el juego de caracteres de la parte aleatoria.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length es el número de caracteres aleatorios (sin contar el prefijo).
var Length = 21

// GenerateWithPrefix devuelve una clave nueva con el prefijo dado.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
