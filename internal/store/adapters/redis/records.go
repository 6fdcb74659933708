package redis

import (
	"time"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

// Los tipos de dominio ocultan secretos del JSON (`json:"-"`), pero el
// backend sí tiene que persistirlos. Cada entidad se guarda vía un record
// propio que incluye password_hash, secret_key y backup_codes, y que además
// lleva el pool_id adentro del valor: al cargar se compara contra el pool
// de la clave pedida para detectar cruces de tenant.

type poolRecord struct {
	ID               string                    `json:"pool_id"`
	Name             string                    `json:"name"`
	CustomAttributes map[string]string         `json:"custom_attributes"`
	PasswordPolicy   repository.PasswordPolicy `json:"password_policy"`
	MFAConfiguration repository.MFAMode        `json:"mfa_configuration"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

func (r *poolRecord) toDomain() *repository.Pool {
	return &repository.Pool{
		ID:               r.ID,
		Name:             r.Name,
		CustomAttributes: r.CustomAttributes,
		PasswordPolicy:   r.PasswordPolicy,
		MFAConfiguration: r.MFAConfiguration,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type userRecord struct {
	ID               string                `json:"user_id"`
	PoolID           string                `json:"pool_id"`
	Email            string                `json:"email"`
	EmailVerified    bool                  `json:"email_verified"`
	PasswordHash     string                `json:"password_hash"`
	Name             string                `json:"name,omitempty"`
	GivenName        string                `json:"given_name,omitempty"`
	FamilyName       string                `json:"family_name,omitempty"`
	Nickname         string                `json:"nickname,omitempty"`
	Picture          string                `json:"picture,omitempty"`
	Website          string                `json:"website,omitempty"`
	CustomAttributes map[string]any        `json:"custom_attributes,omitempty"`
	Groups           []string              `json:"groups"`
	Status           repository.UserStatus `json:"status"`
	MFAEnabled       bool                  `json:"mfa_enabled"`
	LastLogin        *time.Time            `json:"last_login,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func userToRecord(u *repository.User) *userRecord {
	return &userRecord{
		ID:               u.ID,
		PoolID:           u.PoolID,
		Email:            u.Email,
		EmailVerified:    u.EmailVerified,
		PasswordHash:     u.PasswordHash,
		Name:             u.Name,
		GivenName:        u.GivenName,
		FamilyName:       u.FamilyName,
		Nickname:         u.Nickname,
		Picture:          u.Picture,
		Website:          u.Website,
		CustomAttributes: u.CustomAttributes,
		Groups:           u.Groups,
		Status:           u.Status,
		MFAEnabled:       u.MFAEnabled,
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func (r *userRecord) toDomain() *repository.User {
	groups := r.Groups
	if groups == nil {
		groups = []string{}
	}
	return &repository.User{
		ID:               r.ID,
		PoolID:           r.PoolID,
		Email:            r.Email,
		EmailVerified:    r.EmailVerified,
		PasswordHash:     r.PasswordHash,
		Name:             r.Name,
		GivenName:        r.GivenName,
		FamilyName:       r.FamilyName,
		Nickname:         r.Nickname,
		Picture:          r.Picture,
		Website:          r.Website,
		CustomAttributes: r.CustomAttributes,
		Groups:           groups,
		Status:           r.Status,
		MFAEnabled:       r.MFAEnabled,
		LastLogin:        r.LastLogin,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type clientRecord struct {
	ClientID                string                    `json:"client_id"`
	ClientSecret            string                    `json:"client_secret"`
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
	CreatedAt               time.Time                 `json:"created_at"`
	UpdatedAt               time.Time                 `json:"updated_at"`
}

func clientToRecord(cl *repository.Client) *clientRecord {
	return &clientRecord{
		ClientID:                cl.ClientID,
		ClientSecret:            cl.ClientSecret,
		Name:                    cl.Name,
		PoolID:                  cl.PoolID,
		RedirectURIs:            cl.RedirectURIs,
		PostLogoutRedirectURIs:  cl.PostLogoutRedirectURIs,
		ResponseTypes:           cl.ResponseTypes,
		GrantTypes:              cl.GrantTypes,
		Scope:                   cl.Scope,
		TokenEndpointAuthMethod: cl.TokenEndpointAuthMethod,
		ApplicationType:         cl.ApplicationType,
		Settings:                cl.Settings,
		CreatedAt:               cl.CreatedAt,
		UpdatedAt:               cl.UpdatedAt,
	}
}

func (r *clientRecord) toDomain() *repository.Client {
	return &repository.Client{
		ClientID:                r.ClientID,
		ClientSecret:            r.ClientSecret,
		Name:                    r.Name,
		PoolID:                  r.PoolID,
		RedirectURIs:            r.RedirectURIs,
		PostLogoutRedirectURIs:  r.PostLogoutRedirectURIs,
		ResponseTypes:           r.ResponseTypes,
		GrantTypes:              r.GrantTypes,
		Scope:                   r.Scope,
		TokenEndpointAuthMethod: r.TokenEndpointAuthMethod,
		ApplicationType:         r.ApplicationType,
		Settings:                r.Settings,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

type groupRecord struct {
	ID          string    `json:"group_id"`
	PoolID      string    `json:"pool_id"`
	Name        string    `json:"group_name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func groupToRecord(g *repository.Group) *groupRecord {
	return &groupRecord{
		ID:          g.ID,
		PoolID:      g.PoolID,
		Name:        g.Name,
		Description: g.Description,
		Permissions: g.Permissions,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func (r *groupRecord) toDomain() *repository.Group {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return &repository.Group{
		ID:          r.ID,
		PoolID:      r.PoolID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type mfaRecord struct {
	ID          string                `json:"device_id"`
	PoolID      string                `json:"pool_id"`
	UserID      string                `json:"user_id"`
	Name        string                `json:"device_name"`
	Type        repository.DeviceType `json:"device_type"`
	SecretKey   string                `json:"secret_key"`
	Verified    bool                  `json:"is_verified"`
	BackupCodes []string              `json:"backup_codes"`
	LastUsed    *time.Time            `json:"last_used,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func mfaToRecord(d *repository.MFADevice) *mfaRecord {
	return &mfaRecord{
		ID:          d.ID,
		PoolID:      d.PoolID,
		UserID:      d.UserID,
		Name:        d.Name,
		Type:        d.Type,
		SecretKey:   d.SecretKey,
		Verified:    d.Verified,
		BackupCodes: d.BackupCodes,
		LastUsed:    d.LastUsed,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (r *mfaRecord) toDomain() *repository.MFADevice {
	codes := r.BackupCodes
	if codes == nil {
		codes = []string{}
	}
	return &repository.MFADevice{
		ID:          r.ID,
		PoolID:      r.PoolID,
		UserID:      r.UserID,
		Name:        r.Name,
		Type:        r.Type,
		SecretKey:   r.SecretKey,
		Verified:    r.Verified,
		BackupCodes: codes,
		LastUsed:    r.LastUsed,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
