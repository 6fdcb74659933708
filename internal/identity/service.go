// Package identity implementa el Account service: lookup, autenticación y
// proyección de claims sobre el storage contract.
package identity

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/metrics"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/security/password"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// legacyIDPattern detecta account ids con la forma del esquema viejo (UUID
// plano). Esos ids vienen de sesiones acuñadas antes de la migración y se
// rechazan para forzar re-autenticación.
var legacyIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ErrLegacyID indica un account id del esquema de identidad anterior.
var ErrLegacyID = fmt.Errorf("legacy account id: %w", repository.ErrNotFound)

// Service expone las operaciones de cuenta. Todas las llamadas van al
// storage activo del factory; no hay cache de usuarios.
type Service struct {
	conn       store.Connection
	hashParams password.Params
	defPolicy  password.Policy
	blacklist  *password.Blacklist
	log        *zap.Logger
}

type Option func(*Service)

// WithHashParams pisa los parámetros argon2id default.
func WithHashParams(p password.Params) Option {
	return func(s *Service) { s.hashParams = p }
}

// WithDefaultPolicy define la policy para pools sin policy propia.
func WithDefaultPolicy(p password.Policy) Option {
	return func(s *Service) { s.defPolicy = p }
}

// WithBlacklist agrega una blacklist de passwords comunes.
func WithBlacklist(bl *password.Blacklist) Option {
	return func(s *Service) { s.blacklist = bl }
}

// WithLogger pisa el logger default del service.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(conn store.Connection, opts ...Option) *Service {
	s := &Service{
		conn:       conn,
		hashParams: password.Default,
		defPolicy:  password.Policy{MinLength: 8},
		log:        logger.Named("identity"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FindByPoolAndID busca una cuenta. Ids con forma legacy (UUID plano, el
// esquema de identidad anterior) se rechazan con ErrLegacyID sin tocar el
// storage: la sesión que los trae tiene que re-autenticar. Los ids actuales
// llevan prefijo usr_ y nunca matchean.
func (s *Service) FindByPoolAndID(ctx context.Context, poolID, accountID string) (*repository.User, error) {
	if legacyIDPattern.MatchString(accountID) {
		return nil, ErrLegacyID
	}
	return s.conn.Users().Get(ctx, poolID, accountID)
}

func (s *Service) FindByPoolAndEmail(ctx context.Context, poolID, email string) (*repository.User, error) {
	return s.conn.Users().GetByEmail(ctx, poolID, email)
}

// Authenticate resuelve clientID → pool, busca el user por email dentro de
// ese pool y verifica el password. "No existe el user" y "password mal"
// devuelven ambos ErrInvalidCredentials: el caller no puede distinguirlos.
func (s *Service) Authenticate(ctx context.Context, email, plain, clientID string) (*repository.User, error) {
	pool, err := s.conn.Pools().GetByClientID(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, repository.ErrInvalidCredentials
		}
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	user, err := s.conn.Users().GetByEmail(ctx, pool.ID, email)
	if err != nil {
		if repository.IsNotFound(err) {
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, repository.ErrInvalidCredentials
		}
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	if !password.Verify(plain, user.PasswordHash) {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		s.log.Info("login rejected",
			logger.PoolID(pool.ID), logger.Email(email))
		return nil, repository.ErrInvalidCredentials
	}

	// Side-effect del login exitoso.
	now := time.Now().UTC()
	updated, err := s.conn.Users().Update(ctx, pool.ID, user.ID, repository.UpdateUserInput{
		LastLogin: &now,
	})
	if err != nil {
		// El login ya es válido; no lo tiramos por un lastLogin perdido.
		s.log.Warn("last_login update failed",
			logger.PoolID(pool.ID), logger.UserID(user.ID), zap.Error(err))
		updated = user
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return updated, nil
}

// CreateAccountInput es el input de alta de cuenta. El password viaja en
// plano hasta acá y solo acá se hashea.
type CreateAccountInput struct {
	PoolID           string
	Email            string
	Password         string
	EmailVerified    bool
	Name             string
	GivenName        string
	FamilyName       string
	Nickname         string
	Picture          string
	Website          string
	CustomAttributes map[string]any
	Groups           []string
	Status           repository.UserStatus
}

func (s *Service) Create(ctx context.Context, input CreateAccountInput) (*repository.User, error) {
	pool, err := s.conn.Pools().Get(ctx, input.PoolID)
	if err != nil {
		return nil, err
	}

	pol := poolPolicy(pool, s.defPolicy)
	if ok, reasons := pol.Validate(input.Password); !ok {
		return nil, fmt.Errorf("password policy: %v: %w", reasons, repository.ErrInvalidInput)
	}
	if s.blacklist.Contains(input.Password) {
		return nil, fmt.Errorf("password blacklisted: %w", repository.ErrInvalidInput)
	}

	hash, err := password.Hash(s.hashParams, input.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.conn.Users().Create(ctx, repository.CreateUserInput{
		PoolID:           input.PoolID,
		Email:            input.Email,
		EmailVerified:    input.EmailVerified,
		PasswordHash:     hash,
		Name:             input.Name,
		GivenName:        input.GivenName,
		FamilyName:       input.FamilyName,
		Nickname:         input.Nickname,
		Picture:          input.Picture,
		Website:          input.Website,
		CustomAttributes: input.CustomAttributes,
		Groups:           input.Groups,
		Status:           input.Status,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("account created",
		logger.PoolID(user.PoolID), logger.UserID(user.ID), logger.Email(user.Email))
	return user, nil
}

// UpdateAccountInput permite cambiar perfil y password. CustomAttributes se
// mergea contra el blob existente acá, no en el backend: el contract recibe
// siempre el reemplazo completo.
type UpdateAccountInput struct {
	Email            *string
	EmailVerified    *bool
	Password         *string
	Name             *string
	GivenName        *string
	FamilyName       *string
	Nickname         *string
	Picture          *string
	Website          *string
	CustomAttributes map[string]any
	Status           *repository.UserStatus
}

func (s *Service) Update(ctx context.Context, poolID, accountID string, input UpdateAccountInput) (*repository.User, error) {
	upd := repository.UpdateUserInput{
		Email:         input.Email,
		EmailVerified: input.EmailVerified,
		Name:          input.Name,
		GivenName:     input.GivenName,
		FamilyName:    input.FamilyName,
		Nickname:      input.Nickname,
		Picture:       input.Picture,
		Website:       input.Website,
		Status:        input.Status,
	}

	if input.Password != nil {
		pool, err := s.conn.Pools().Get(ctx, poolID)
		if err != nil {
			return nil, err
		}
		pol := poolPolicy(pool, s.defPolicy)
		if ok, reasons := pol.Validate(*input.Password); !ok {
			return nil, fmt.Errorf("password policy: %v: %w", reasons, repository.ErrInvalidInput)
		}
		hash, err := password.Hash(s.hashParams, *input.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}

	if input.CustomAttributes != nil {
		current, err := s.conn.Users().Get(ctx, poolID, accountID)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]any, len(current.CustomAttributes)+len(input.CustomAttributes))
		for k, v := range current.CustomAttributes {
			merged[k] = v
		}
		for k, v := range input.CustomAttributes {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		upd.CustomAttributes = merged
	}

	return s.conn.Users().Update(ctx, poolID, accountID, upd)
}

func (s *Service) Delete(ctx context.Context, poolID, accountID string) error {
	return s.conn.Users().Delete(ctx, poolID, accountID)
}

// poolPolicy mapea la policy del pool al tipo del paquete password; un pool
// sin policy (todo en cero) hereda la default del service.
func poolPolicy(pool *repository.Pool, def password.Policy) password.Policy {
	pp := pool.PasswordPolicy
	if pp == (repository.PasswordPolicy{}) {
		return def
	}
	return password.Policy{
		MinLength:     pp.MinLength,
		RequireUpper:  pp.RequireUppercase,
		RequireLower:  pp.RequireLowercase,
		RequireDigit:  pp.RequireNumbers,
		RequireSymbol: pp.RequireSymbols,
	}
}
