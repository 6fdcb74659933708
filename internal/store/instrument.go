package store

import (
	"context"
	"time"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/metrics"
)

// Instrument envuelve una Connection para que cada operación del contrato
// registre latencia y errores en Prometheus, con labels (backend, entity,
// op). El factory instrumenta la conexión activa; los adapters no saben de
// métricas.
func Instrument(conn Connection) Connection {
	return &measuredConn{Connection: conn}
}

func observe(backend, entity, op string, start time.Time, err error) {
	metrics.StoreOpLatency.WithLabelValues(backend, entity, op).
		Observe(float64(time.Since(start)) / float64(time.Millisecond))
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues(backend, entity, op).Inc()
	}
}

type measuredConn struct {
	Connection
}

func (c *measuredConn) Pools() repository.PoolRepository {
	return &measuredPools{inner: c.Connection.Pools(), backend: c.Name()}
}

func (c *measuredConn) Users() repository.UserRepository {
	return &measuredUsers{inner: c.Connection.Users(), backend: c.Name()}
}

func (c *measuredConn) Clients() repository.ClientRepository {
	return &measuredClients{inner: c.Connection.Clients(), backend: c.Name()}
}

func (c *measuredConn) Groups() repository.GroupRepository {
	return &measuredGroups{inner: c.Connection.Groups(), backend: c.Name()}
}

func (c *measuredConn) MFADevices() repository.MFADeviceRepository {
	return &measuredMFA{inner: c.Connection.MFADevices(), backend: c.Name()}
}

// ─── Pools ───

type measuredPools struct {
	inner   repository.PoolRepository
	backend string
}

func (r *measuredPools) Create(ctx context.Context, input repository.CreatePoolInput) (*repository.Pool, error) {
	start := time.Now()
	p, err := r.inner.Create(ctx, input)
	observe(r.backend, "pool", "create", start, err)
	return p, err
}

func (r *measuredPools) Get(ctx context.Context, poolID string) (*repository.Pool, error) {
	start := time.Now()
	p, err := r.inner.Get(ctx, poolID)
	observe(r.backend, "pool", "get", start, err)
	return p, err
}

func (r *measuredPools) GetByClientID(ctx context.Context, clientID string) (*repository.Pool, error) {
	start := time.Now()
	p, err := r.inner.GetByClientID(ctx, clientID)
	observe(r.backend, "pool", "get_by_client", start, err)
	return p, err
}

func (r *measuredPools) List(ctx context.Context) ([]repository.Pool, error) {
	start := time.Now()
	ps, err := r.inner.List(ctx)
	observe(r.backend, "pool", "list", start, err)
	return ps, err
}

func (r *measuredPools) Update(ctx context.Context, poolID string, input repository.UpdatePoolInput) (*repository.Pool, error) {
	start := time.Now()
	p, err := r.inner.Update(ctx, poolID, input)
	observe(r.backend, "pool", "update", start, err)
	return p, err
}

func (r *measuredPools) Delete(ctx context.Context, poolID string) error {
	start := time.Now()
	err := r.inner.Delete(ctx, poolID)
	observe(r.backend, "pool", "delete", start, err)
	return err
}

// ─── Users ───

type measuredUsers struct {
	inner   repository.UserRepository
	backend string
}

func (r *measuredUsers) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	start := time.Now()
	u, err := r.inner.Create(ctx, input)
	observe(r.backend, "user", "create", start, err)
	return u, err
}

func (r *measuredUsers) Get(ctx context.Context, poolID, userID string) (*repository.User, error) {
	start := time.Now()
	u, err := r.inner.Get(ctx, poolID, userID)
	observe(r.backend, "user", "get", start, err)
	return u, err
}

func (r *measuredUsers) GetByEmail(ctx context.Context, poolID, email string) (*repository.User, error) {
	start := time.Now()
	u, err := r.inner.GetByEmail(ctx, poolID, email)
	observe(r.backend, "user", "get_by_email", start, err)
	return u, err
}

func (r *measuredUsers) List(ctx context.Context, poolID string, limit int, token string) ([]repository.User, string, error) {
	start := time.Now()
	us, next, err := r.inner.List(ctx, poolID, limit, token)
	observe(r.backend, "user", "list", start, err)
	return us, next, err
}

func (r *measuredUsers) Update(ctx context.Context, poolID, userID string, input repository.UpdateUserInput) (*repository.User, error) {
	start := time.Now()
	u, err := r.inner.Update(ctx, poolID, userID, input)
	observe(r.backend, "user", "update", start, err)
	return u, err
}

func (r *measuredUsers) Delete(ctx context.Context, poolID, userID string) error {
	start := time.Now()
	err := r.inner.Delete(ctx, poolID, userID)
	observe(r.backend, "user", "delete", start, err)
	return err
}

// ─── Clients ───

type measuredClients struct {
	inner   repository.ClientRepository
	backend string
}

func (r *measuredClients) Create(ctx context.Context, input repository.CreateClientInput) (*repository.Client, error) {
	start := time.Now()
	c, err := r.inner.Create(ctx, input)
	observe(r.backend, "client", "create", start, err)
	return c, err
}

func (r *measuredClients) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	start := time.Now()
	c, err := r.inner.Get(ctx, clientID)
	observe(r.backend, "client", "get", start, err)
	return c, err
}

func (r *measuredClients) List(ctx context.Context, poolID string, limit int, token string) ([]repository.Client, string, error) {
	start := time.Now()
	cs, next, err := r.inner.List(ctx, poolID, limit, token)
	observe(r.backend, "client", "list", start, err)
	return cs, next, err
}

func (r *measuredClients) Update(ctx context.Context, clientID string, input repository.UpdateClientInput) (*repository.Client, error) {
	start := time.Now()
	c, err := r.inner.Update(ctx, clientID, input)
	observe(r.backend, "client", "update", start, err)
	return c, err
}

func (r *measuredClients) Delete(ctx context.Context, clientID string) error {
	start := time.Now()
	err := r.inner.Delete(ctx, clientID)
	observe(r.backend, "client", "delete", start, err)
	return err
}

// ─── Groups ───

type measuredGroups struct {
	inner   repository.GroupRepository
	backend string
}

func (r *measuredGroups) Create(ctx context.Context, input repository.CreateGroupInput) (*repository.Group, error) {
	start := time.Now()
	g, err := r.inner.Create(ctx, input)
	observe(r.backend, "group", "create", start, err)
	return g, err
}

func (r *measuredGroups) Get(ctx context.Context, poolID, groupID string) (*repository.Group, error) {
	start := time.Now()
	g, err := r.inner.Get(ctx, poolID, groupID)
	observe(r.backend, "group", "get", start, err)
	return g, err
}

func (r *measuredGroups) GetByName(ctx context.Context, poolID, name string) (*repository.Group, error) {
	start := time.Now()
	g, err := r.inner.GetByName(ctx, poolID, name)
	observe(r.backend, "group", "get_by_name", start, err)
	return g, err
}

func (r *measuredGroups) List(ctx context.Context, poolID string, limit int, token string) ([]repository.Group, string, error) {
	start := time.Now()
	gs, next, err := r.inner.List(ctx, poolID, limit, token)
	observe(r.backend, "group", "list", start, err)
	return gs, next, err
}

func (r *measuredGroups) Update(ctx context.Context, poolID, groupID string, input repository.UpdateGroupInput) (*repository.Group, error) {
	start := time.Now()
	g, err := r.inner.Update(ctx, poolID, groupID, input)
	observe(r.backend, "group", "update", start, err)
	return g, err
}

func (r *measuredGroups) Delete(ctx context.Context, poolID, groupID string) error {
	start := time.Now()
	err := r.inner.Delete(ctx, poolID, groupID)
	observe(r.backend, "group", "delete", start, err)
	return err
}

func (r *measuredGroups) AddUser(ctx context.Context, poolID, userID, groupID string) error {
	start := time.Now()
	err := r.inner.AddUser(ctx, poolID, userID, groupID)
	observe(r.backend, "group", "add_user", start, err)
	return err
}

func (r *measuredGroups) RemoveUser(ctx context.Context, poolID, userID, groupID string) error {
	start := time.Now()
	err := r.inner.RemoveUser(ctx, poolID, userID, groupID)
	observe(r.backend, "group", "remove_user", start, err)
	return err
}

func (r *measuredGroups) UserGroups(ctx context.Context, poolID, userID string) ([]repository.Group, error) {
	start := time.Now()
	gs, err := r.inner.UserGroups(ctx, poolID, userID)
	observe(r.backend, "group", "user_groups", start, err)
	return gs, err
}

func (r *measuredGroups) GroupUsers(ctx context.Context, poolID, groupID string) ([]repository.User, error) {
	start := time.Now()
	us, err := r.inner.GroupUsers(ctx, poolID, groupID)
	observe(r.backend, "group", "group_users", start, err)
	return us, err
}

// ─── MFA devices ───

type measuredMFA struct {
	inner   repository.MFADeviceRepository
	backend string
}

func (r *measuredMFA) Create(ctx context.Context, input repository.CreateMFADeviceInput) (*repository.MFADevice, error) {
	start := time.Now()
	d, err := r.inner.Create(ctx, input)
	observe(r.backend, "mfa_device", "create", start, err)
	return d, err
}

func (r *measuredMFA) Get(ctx context.Context, poolID, userID, deviceID string) (*repository.MFADevice, error) {
	start := time.Now()
	d, err := r.inner.Get(ctx, poolID, userID, deviceID)
	observe(r.backend, "mfa_device", "get", start, err)
	return d, err
}

func (r *measuredMFA) ListByUser(ctx context.Context, poolID, userID string) ([]repository.MFADevice, error) {
	start := time.Now()
	ds, err := r.inner.ListByUser(ctx, poolID, userID)
	observe(r.backend, "mfa_device", "list_by_user", start, err)
	return ds, err
}

func (r *measuredMFA) Update(ctx context.Context, poolID, userID, deviceID string, input repository.UpdateMFADeviceInput) (*repository.MFADevice, error) {
	start := time.Now()
	d, err := r.inner.Update(ctx, poolID, userID, deviceID, input)
	observe(r.backend, "mfa_device", "update", start, err)
	return d, err
}

func (r *measuredMFA) Delete(ctx context.Context, poolID, userID, deviceID string) error {
	start := time.Now()
	err := r.inner.Delete(ctx, poolID, userID, deviceID)
	observe(r.backend, "mfa_device", "delete", start, err)
	return err
}
