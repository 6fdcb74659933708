package store

import "github.com/google/uuid"

// NewUserID genera un id de cuenta del esquema actual. El prefijo importa:
// el esquema anterior usaba UUIDs pelados como identidad global, y esos ids
// se rechazan en el Identity Model para invalidar sesiones viejas. Un id
// nuevo nunca puede tener forma de UUID plano.
func NewUserID() string {
	return "usr_" + uuid.NewString()
}
