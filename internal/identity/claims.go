package identity

import (
	"context"
	"strings"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

// Claims proyecta el perfil de una cuenta según los scopes pedidos:
//
//	openid  → sub (siempre presente si openid está)
//	profile → name, given_name, family_name, nickname, picture, website, updated_at
//	email   → email, email_verified
//
// Los custom attributes declarados por el pool entran SIN gate de scope.
// Es el comportamiento histórico del sistema; endurecerlo es un cambio de
// contrato con las apps, no un fix silencioso.
func Claims(user *repository.User, pool *repository.Pool, scopes []string) map[string]any {
	claims := map[string]any{}

	for _, sc := range scopes {
		switch sc {
		case "openid":
			claims["sub"] = user.ID
		case "profile":
			if user.Name != "" {
				claims["name"] = user.Name
			}
			if user.GivenName != "" {
				claims["given_name"] = user.GivenName
			}
			if user.FamilyName != "" {
				claims["family_name"] = user.FamilyName
			}
			if user.Nickname != "" {
				claims["nickname"] = user.Nickname
			}
			if user.Picture != "" {
				claims["picture"] = user.Picture
			}
			if user.Website != "" {
				claims["website"] = user.Website
			}
			claims["updated_at"] = user.UpdatedAt.Unix()
		case "email":
			claims["email"] = user.Email
			claims["email_verified"] = user.EmailVerified
		}
	}

	for name := range pool.CustomAttributes {
		if v, ok := user.CustomAttributes[name]; ok {
			claims[name] = v
		}
	}
	return claims
}

// ClaimsForAccount es el puente findAccount del protocol engine: resuelve
// el client a su pool, carga la cuenta dentro de ese pool y proyecta los
// claims para el scope pedido. Ids legacy rebotan igual que en Find.
func (s *Service) ClaimsForAccount(ctx context.Context, clientID, accountID, scope string) (map[string]any, error) {
	pool, err := s.conn.Pools().GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	user, err := s.FindByPoolAndID(ctx, pool.ID, accountID)
	if err != nil {
		return nil, err
	}
	return Claims(user, pool, strings.Fields(scope)), nil
}
