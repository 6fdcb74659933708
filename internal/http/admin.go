package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/idmx-dev/poolhouse/internal/appregistry"
	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/identity"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// adminHandler expone el CRUD de pools, users, clients y groups. Es una
// superficie de provisioning: se asume detrás de un gateway que ya autenticó
// al operador (mismo trust boundary que poolctl contra el store directo).
type adminHandler struct {
	conn     store.Connection
	accounts *identity.Service
	registry *appregistry.Registry
}

func newAdminHandler(conn store.Connection, accounts *identity.Service, registry *appregistry.Registry) *adminHandler {
	return &adminHandler{conn: conn, accounts: accounts, registry: registry}
}

func (h *adminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Route("/pools", func(r chi.Router) {
			r.Post("/", h.createPool)
			r.Get("/", h.listPools)
			r.Route("/{poolID}", func(r chi.Router) {
				r.Get("/", h.getPool)
				r.Patch("/", h.updatePool)
				r.Delete("/", h.deletePool)

				r.Route("/users", func(r chi.Router) {
					r.Post("/", h.createUser)
					r.Get("/", h.listUsers)
					r.Route("/{userID}", func(r chi.Router) {
						r.Get("/", h.getUser)
						r.Patch("/", h.updateUser)
						r.Delete("/", h.deleteUser)
						r.Get("/groups", h.userGroups)
					})
				})

				r.Route("/groups", func(r chi.Router) {
					r.Post("/", h.createGroup)
					r.Get("/", h.listGroups)
					r.Route("/{groupID}", func(r chi.Router) {
						r.Get("/", h.getGroup)
						r.Delete("/", h.deleteGroup)
						r.Get("/users", h.groupUsers)
						r.Put("/users/{userID}", h.addGroupUser)
						r.Delete("/users/{userID}", h.removeGroupUser)
					})
				})
			})
		})

		r.Route("/clients", func(r chi.Router) {
			r.Post("/", h.createClient)
			r.Get("/", h.listClients)
			r.Post("/reload", h.reloadClients)
			r.Route("/{clientID}", func(r chi.Router) {
				r.Get("/", h.getClient)
				r.Delete("/", h.deleteClient)
			})
		})
	})
}

// pageParams lee limit/after de la query. El token es opaco para el caller:
// va y vuelve tal cual lo emitió el backend.
func pageParams(r *http.Request) (int, string) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return limit, r.URL.Query().Get("after")
}

type pageResponse struct {
	Items     any    `json:"items"`
	NextToken string `json:"next_token,omitempty"`
}

// ─── Pools ───────────────────────────────────────────────────────────────

func (h *adminHandler) createPool(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID               string                    `json:"pool_id"`
		Name             string                    `json:"name"`
		CustomAttributes map[string]string         `json:"custom_attributes"`
		PasswordPolicy   repository.PasswordPolicy `json:"password_policy"`
		MFAConfiguration repository.MFAMode        `json:"mfa_configuration"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	pool, err := h.conn.Pools().Create(r.Context(), repository.CreatePoolInput{
		ID:               body.ID,
		Name:             body.Name,
		CustomAttributes: body.CustomAttributes,
		PasswordPolicy:   body.PasswordPolicy,
		MFAConfiguration: body.MFAConfiguration,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (h *adminHandler) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.conn.Pools().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: pools})
}

func (h *adminHandler) getPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.conn.Pools().Get(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *adminHandler) updatePool(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name             *string                    `json:"name"`
		CustomAttributes map[string]string          `json:"custom_attributes"`
		PasswordPolicy   *repository.PasswordPolicy `json:"password_policy"`
		MFAConfiguration *repository.MFAMode        `json:"mfa_configuration"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	pool, err := h.conn.Pools().Update(r.Context(), chi.URLParam(r, "poolID"), repository.UpdatePoolInput{
		Name:             body.Name,
		CustomAttributes: body.CustomAttributes,
		PasswordPolicy:   body.PasswordPolicy,
		MFAConfiguration: body.MFAConfiguration,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *adminHandler) deletePool(w http.ResponseWriter, r *http.Request) {
	if err := h.conn.Pools().Delete(r.Context(), chi.URLParam(r, "poolID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Users ───────────────────────────────────────────────────────────────

func (h *adminHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email            string         `json:"email"`
		Password         string         `json:"password"`
		EmailVerified    bool           `json:"email_verified"`
		Name             string         `json:"name"`
		GivenName        string         `json:"given_name"`
		FamilyName       string         `json:"family_name"`
		Nickname         string         `json:"nickname"`
		Picture          string         `json:"picture"`
		Website          string         `json:"website"`
		CustomAttributes map[string]any `json:"custom_attributes"`
		Groups           []string       `json:"groups"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	user, err := h.accounts.Create(r.Context(), identity.CreateAccountInput{
		PoolID:           chi.URLParam(r, "poolID"),
		Email:            body.Email,
		Password:         body.Password,
		EmailVerified:    body.EmailVerified,
		Name:             body.Name,
		GivenName:        body.GivenName,
		FamilyName:       body.FamilyName,
		Nickname:         body.Nickname,
		Picture:          body.Picture,
		Website:          body.Website,
		CustomAttributes: body.CustomAttributes,
		Groups:           body.Groups,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *adminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, after := pageParams(r)
	users, next, err := h.conn.Users().List(r.Context(), chi.URLParam(r, "poolID"), limit, after)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: users, NextToken: next})
}

func (h *adminHandler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.FindByPoolAndID(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *adminHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email            *string                `json:"email"`
		EmailVerified    *bool                  `json:"email_verified"`
		Password         *string                `json:"password"`
		Name             *string                `json:"name"`
		GivenName        *string                `json:"given_name"`
		FamilyName       *string                `json:"family_name"`
		Nickname         *string                `json:"nickname"`
		Picture          *string                `json:"picture"`
		Website          *string                `json:"website"`
		CustomAttributes map[string]any         `json:"custom_attributes"`
		Status           *repository.UserStatus `json:"status"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	user, err := h.accounts.Update(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "userID"), identity.UpdateAccountInput{
		Email:            body.Email,
		EmailVerified:    body.EmailVerified,
		Password:         body.Password,
		Name:             body.Name,
		GivenName:        body.GivenName,
		FamilyName:       body.FamilyName,
		Nickname:         body.Nickname,
		Picture:          body.Picture,
		Website:          body.Website,
		CustomAttributes: body.CustomAttributes,
		Status:           body.Status,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *adminHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "userID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) userGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.conn.Groups().UserGroups(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: groups})
}

// ─── Groups ──────────────────────────────────────────────────────────────

func (h *adminHandler) createGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string   `json:"group_name"`
		Description string   `json:"description"`
		Permissions []string `json:"permissions"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	group, err := h.conn.Groups().Create(r.Context(), repository.CreateGroupInput{
		PoolID:      chi.URLParam(r, "poolID"),
		Name:        body.Name,
		Description: body.Description,
		Permissions: body.Permissions,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *adminHandler) listGroups(w http.ResponseWriter, r *http.Request) {
	limit, after := pageParams(r)
	groups, next, err := h.conn.Groups().List(r.Context(), chi.URLParam(r, "poolID"), limit, after)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: groups, NextToken: next})
}

func (h *adminHandler) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.conn.Groups().Get(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *adminHandler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.conn.Groups().Delete(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "groupID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) groupUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.conn.Groups().GroupUsers(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: users})
}

func (h *adminHandler) addGroupUser(w http.ResponseWriter, r *http.Request) {
	err := h.conn.Groups().AddUser(r.Context(),
		chi.URLParam(r, "poolID"), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) removeGroupUser(w http.ResponseWriter, r *http.Request) {
	err := h.conn.Groups().RemoveUser(r.Context(),
		chi.URLParam(r, "poolID"), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Clients ─────────────────────────────────────────────────────────────

func (h *adminHandler) createClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID                string                    `json:"client_id"`
		Name                    string                    `json:"client_name"`
		PoolID                  string                    `json:"pool_id"`
		RedirectURIs            []string                  `json:"redirect_uris"`
		PostLogoutRedirectURIs  []string                  `json:"post_logout_redirect_uris"`
		ResponseTypes           []string                  `json:"response_types"`
		GrantTypes              []string                  `json:"grant_types"`
		Scope                   string                    `json:"scope"`
		TokenEndpointAuthMethod string                    `json:"token_endpoint_auth_method"`
		ApplicationType         string                    `json:"application_type"`
		Settings                repository.ClientSettings `json:"settings"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	client, err := h.registry.Register(r.Context(), appregistry.RegisterInput{
		ClientID:                body.ClientID,
		Name:                    body.Name,
		PoolID:                  body.PoolID,
		RedirectURIs:            body.RedirectURIs,
		PostLogoutRedirectURIs:  body.PostLogoutRedirectURIs,
		ResponseTypes:           body.ResponseTypes,
		GrantTypes:              body.GrantTypes,
		Scope:                   body.Scope,
		TokenEndpointAuthMethod: body.TokenEndpointAuthMethod,
		ApplicationType:         body.ApplicationType,
		Settings:                body.Settings,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Única respuesta que incluye el secret: después del alta no se vuelve
	// a exponer.
	writeJSON(w, http.StatusCreated, struct {
		*repository.Client
		ClientSecret string `json:"client_secret"`
	}{Client: client, ClientSecret: client.ClientSecret})
}

func (h *adminHandler) listClients(w http.ResponseWriter, r *http.Request) {
	limit, after := pageParams(r)
	clients, next, err := h.registry.List(r.Context(), r.URL.Query().Get("pool_id"), limit, after)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: clients, NextToken: next})
}

// reloadClients re-enumera el registry completo. Es el único camino de
// refresh de la lista en memoria del protocol engine: no hay invalidación
// automática.
func (h *adminHandler) reloadClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.registry.LoadAll(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	logger.From(r.Context()).Info("client registry reloaded", logger.Count(len(clients)))
	writeJSON(w, http.StatusOK, pageResponse{Items: clients})
}

func (h *adminHandler) getClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.registry.Get(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *adminHandler) deleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "clientID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
