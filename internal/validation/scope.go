// Package validation contiene validaciones sintácticas compartidas que no
// pertenecen a ningún backend.
package validation

import "regexp"

// Reglas de nombre de scope:
//   - minúsculas solamente
//   - empieza y termina en [a-z0-9]
//   - en el medio se admite [a-z0-9:_.-]
//   - largo 1..64
//
// Válidos: profile, profile:read, pool:users.read, a
// Inválidos: BAD, "con espacio", :lead, trail:, ";hack", vacío.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName reporta si el nombre de scope cumple el patrón permitido.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}
