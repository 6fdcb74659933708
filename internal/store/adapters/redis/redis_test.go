package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
)

func testConn(t *testing.T) store.Connection {
	t.Helper()
	c, _ := testConnRaw(t)
	return c
}

// testConnRaw expone además el miniredis, para tests que necesitan
// manipular claves por debajo del adapter.
func testConnRaw(t *testing.T) (store.Connection, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := connect(context.Background(), store.AdapterConfig{
		Name:      "redis",
		RedisAddr: mr.Addr(),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestAdapterRegistered(t *testing.T) {
	a, ok := store.Lookup("redis")
	if !ok {
		t.Fatal("redis adapter must self-register via init")
	}
	if a.Name() != "redis" {
		t.Fatalf("adapter name: got %q", a.Name())
	}
}

func mustPool(t *testing.T, c store.Connection, id string) *repository.Pool {
	t.Helper()
	p, err := c.Pools().Create(context.Background(), repository.CreatePoolInput{
		ID:   id,
		Name: "Pool " + id,
	})
	if err != nil {
		t.Fatalf("create pool %s: %v", id, err)
	}
	return p
}

func mustUser(t *testing.T, c store.Connection, poolID, email string) *repository.User {
	t.Helper()
	u, err := c.Users().Create(context.Background(), repository.CreateUserInput{
		PoolID:       poolID,
		Email:        email,
		PasswordHash: "$argon2id$fake",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func TestPoolCRUD(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()

	p := mustPool(t, c, "acme")
	if p.MFAConfiguration != repository.MFAOff {
		t.Fatalf("default mfa mode: got %q", p.MFAConfiguration)
	}

	got, err := c.Pools().Get(ctx, "acme")
	if err != nil || got.Name != "Pool acme" {
		t.Fatalf("get: %v, %+v", err, got)
	}

	if _, err := c.Pools().Create(ctx, repository.CreatePoolInput{ID: "acme", Name: "dup"}); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("duplicate pool id: got %v", err)
	}

	newName := "Acme Corp"
	mode := repository.MFARequired
	upd, err := c.Pools().Update(ctx, "acme", repository.UpdatePoolInput{Name: &newName, MFAConfiguration: &mode})
	if err != nil || upd.Name != newName || upd.MFAConfiguration != mode {
		t.Fatalf("update: %v, %+v", err, upd)
	}

	if _, err := c.Pools().Get(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing pool: got %v", err)
	}
}

func TestPoolGeneratedID(t *testing.T) {
	c := testConn(t)
	p, err := c.Pools().Create(context.Background(), repository.CreatePoolInput{Name: "anon"})
	if err != nil || p.ID == "" {
		t.Fatalf("generated id: %v, %+v", err, p)
	}
}

func TestUserEmailUniquePerPool(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "a")
	mustPool(t, c, "b")

	mustUser(t, c, "a", "dup@example.com")
	if _, err := c.Users().Create(ctx, repository.CreateUserInput{
		PoolID: "a", Email: "dup@example.com", PasswordHash: "h",
	}); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("same pool, same email: got %v", err)
	}

	// Mismo email en otro pool es válido: la unicidad es por pool.
	mustUser(t, c, "b", "dup@example.com")
}

func TestUserCreateRequiresPool(t *testing.T) {
	c := testConn(t)
	if _, err := c.Users().Create(context.Background(), repository.CreateUserInput{
		PoolID: "nope", Email: "x@example.com", PasswordHash: "h",
	}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("orphan user: got %v", err)
	}
}

func TestUserTenantIsolation(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "a")
	mustPool(t, c, "b")
	u := mustUser(t, c, "a", "iso@example.com")

	// Las claves son pool-scoped: leer desde otro pool ni siquiera resuelve.
	if _, err := c.Users().Get(ctx, "b", u.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cross-pool get: got %v", err)
	}
	if _, err := c.Users().GetByEmail(ctx, "b", "iso@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cross-pool email lookup: got %v", err)
	}
}

func TestUserListPagination(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "p")
	for i := 0; i < 7; i++ {
		mustUser(t, c, "p", string(rune('a'+i))+"@example.com")
	}

	seen := map[string]bool{}
	token := ""
	pages := 0
	for {
		page, next, err := c.Users().List(ctx, "p", 3, token)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		pages++
		for _, u := range page {
			if seen[u.ID] {
				t.Fatalf("duplicate %s across pages", u.ID)
			}
			seen[u.ID] = true
		}
		if next == "" {
			break
		}
		token = next
	}
	if len(seen) != 7 {
		t.Fatalf("total: got %d, want 7", len(seen))
	}
	if pages != 3 {
		t.Fatalf("pages: got %d, want 3", pages)
	}
}

func TestUserUpdateEmailMove(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "p")
	u := mustUser(t, c, "p", "old@example.com")

	newEmail := "new@example.com"
	if _, err := c.Users().Update(ctx, "p", u.ID, repository.UpdateUserInput{Email: &newEmail}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := c.Users().GetByEmail(ctx, "p", "old@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("old email must be released: got %v", err)
	}
	got, err := c.Users().GetByEmail(ctx, "p", newEmail)
	if err != nil || got.ID != u.ID {
		t.Fatalf("new email lookup: %v", err)
	}

	// El email liberado puede reusarse.
	mustUser(t, c, "p", "old@example.com")
}

func TestClientGlobalUniqueness(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "a")
	mustPool(t, c, "b")

	if _, err := c.Clients().Create(ctx, repository.CreateClientInput{
		ClientID: "app_1", ClientSecret: "s", PoolID: "a", RedirectURIs: []string{"https://a/cb"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// client_id es la única clave global: choca aun entre pools distintos.
	if _, err := c.Clients().Create(ctx, repository.CreateClientInput{
		ClientID: "app_1", ClientSecret: "s", PoolID: "b", RedirectURIs: []string{"https://b/cb"},
	}); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("cross-pool client id: got %v", err)
	}

	pool, err := c.Pools().GetByClientID(ctx, "app_1")
	if err != nil || pool.ID != "a" {
		t.Fatalf("pool by client: %v, %+v", err, pool)
	}
}

func TestClientListScopes(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "a")
	mustPool(t, c, "b")
	for i, pid := range []string{"a", "a", "b"} {
		if _, err := c.Clients().Create(ctx, repository.CreateClientInput{
			ClientID: "app_" + string(rune('0'+i)), ClientSecret: "s", PoolID: pid,
			RedirectURIs: []string{"https://x/cb"},
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	inA, _, err := c.Clients().List(ctx, "a", 10, "")
	if err != nil || len(inA) != 2 {
		t.Fatalf("pool list: %v, %d", err, len(inA))
	}
	all, _, err := c.Clients().List(ctx, "", 10, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("global list: %v, %d", err, len(all))
	}
}

func TestGroupNameUniqueAndMembership(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "p")
	u := mustUser(t, c, "p", "member@example.com")

	g, err := c.Groups().Create(ctx, repository.CreateGroupInput{PoolID: "p", Name: "admins"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := c.Groups().Create(ctx, repository.CreateGroupInput{PoolID: "p", Name: "admins"}); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("duplicate name: got %v", err)
	}

	if err := c.Groups().AddUser(ctx, "p", u.ID, g.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Idempotente.
	if err := c.Groups().AddUser(ctx, "p", u.ID, g.ID); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	// User.Groups guarda ids de group, mismo contenido que el backend
	// relacional (array_append con el id).
	got, err := c.Users().Get(ctx, "p", u.ID)
	if err != nil || len(got.Groups) != 1 || got.Groups[0] != g.ID {
		t.Fatalf("user groups: %v, %v", err, got.Groups)
	}

	members, err := c.Groups().GroupUsers(ctx, "p", g.ID)
	if err != nil || len(members) != 1 || members[0].ID != u.ID {
		t.Fatalf("members: %v, %v", err, members)
	}

	ugs, err := c.Groups().UserGroups(ctx, "p", u.ID)
	if err != nil || len(ugs) != 1 || ugs[0].ID != g.ID {
		t.Fatalf("user groups lookup: %v, %v", err, ugs)
	}
}

func TestGroupRenameKeepsMembership(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "p")
	u := mustUser(t, c, "p", "m@example.com")
	g, _ := c.Groups().Create(ctx, repository.CreateGroupInput{PoolID: "p", Name: "devs"})
	_ = c.Groups().AddUser(ctx, "p", u.ID, g.ID)

	newName := "engineers"
	if _, err := c.Groups().Update(ctx, "p", g.ID, repository.UpdateGroupInput{Name: &newName}); err != nil {
		t.Fatalf("rename: %v", err)
	}

	// La membresía es por id: el rename no toca a los miembros y la vista
	// por usuario ya refleja el nombre nuevo.
	got, _ := c.Users().Get(ctx, "p", u.ID)
	if len(got.Groups) != 1 || got.Groups[0] != g.ID {
		t.Fatalf("membership after rename: %v", got.Groups)
	}
	ugs, err := c.Groups().UserGroups(ctx, "p", u.ID)
	if err != nil || len(ugs) != 1 || ugs[0].Name != "engineers" {
		t.Fatalf("user groups after rename: %v, %v", err, ugs)
	}
	if _, err := c.Groups().GetByName(ctx, "p", "devs"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("old name must be released: got %v", err)
	}
}

func TestGroupDeleteFanOut(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "p")
	u1 := mustUser(t, c, "p", "u1@example.com")
	u2 := mustUser(t, c, "p", "u2@example.com")
	g, _ := c.Groups().Create(ctx, repository.CreateGroupInput{PoolID: "p", Name: "temp"})
	_ = c.Groups().AddUser(ctx, "p", u1.ID, g.ID)
	_ = c.Groups().AddUser(ctx, "p", u2.ID, g.ID)

	if err := c.Groups().Delete(ctx, "p", g.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, uid := range []string{u1.ID, u2.ID} {
		got, _ := c.Users().Get(ctx, "p", uid)
		if len(got.Groups) != 0 {
			t.Fatalf("membership must be removed, got %v", got.Groups)
		}
	}
	if _, err := c.Groups().Get(ctx, "p", g.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("deleted group: got %v", err)
	}
}

func TestGroupDeleteSurvivesBadMember(t *testing.T) {
	c, mr := testConnRaw(t)
	ctx := context.Background()
	mustPool(t, c, "p")
	u1 := mustUser(t, c, "p", "ok@example.com")
	u2 := mustUser(t, c, "p", "bad@example.com")
	g, _ := c.Groups().Create(ctx, repository.CreateGroupInput{PoolID: "p", Name: "admins"})
	_ = c.Groups().AddUser(ctx, "p", u1.ID, g.ID)
	_ = c.Groups().AddUser(ctx, "p", u2.ID, g.ID)

	// Un miembro con el record roto no puede trabar el delete del group:
	// se loguea y el fan-out sigue.
	if err := mr.Set("user:p:"+u2.ID, "{corrupto"); err != nil {
		t.Fatalf("corrupt member: %v", err)
	}

	if err := c.Groups().Delete(ctx, "p", g.ID); err != nil {
		t.Fatalf("delete must continue past a bad member: %v", err)
	}
	if _, err := c.Groups().Get(ctx, "p", g.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("group must be gone: got %v", err)
	}
	if _, err := c.Groups().GetByName(ctx, "p", "admins"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("name must be released: got %v", err)
	}
	got, err := c.Users().Get(ctx, "p", u1.ID)
	if err != nil || len(got.Groups) != 0 {
		t.Fatalf("healthy member must be cleaned: %v, %v", err, got.Groups)
	}
}

func TestMFADeviceCRUD(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "p")
	u := mustUser(t, c, "p", "mfa@example.com")

	d, err := c.MFADevices().Create(ctx, repository.CreateMFADeviceInput{
		PoolID: "p", UserID: u.ID, SecretKey: "JBSWY3DP",
		BackupCodes: []string{"11111111", "22222222"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Verified {
		t.Fatal("new device must be unverified")
	}
	if d.Name == "" || d.Type == "" {
		t.Fatalf("defaults missing: %+v", d)
	}

	got, err := c.MFADevices().Get(ctx, "p", u.ID, d.ID)
	if err != nil || got.SecretKey != "JBSWY3DP" || len(got.BackupCodes) != 2 {
		t.Fatalf("get: %v, %+v", err, got)
	}

	verified := true
	remaining := []string{"22222222"}
	upd, err := c.MFADevices().Update(ctx, "p", u.ID, d.ID, repository.UpdateMFADeviceInput{
		Verified:    &verified,
		BackupCodes: &remaining,
	})
	if err != nil || !upd.Verified || len(upd.BackupCodes) != 1 {
		t.Fatalf("update: %v, %+v", err, upd)
	}

	list, err := c.MFADevices().ListByUser(ctx, "p", u.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v, %d", err, len(list))
	}

	if err := c.MFADevices().Delete(ctx, "p", u.ID, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.MFADevices().Delete(ctx, "p", u.ID, d.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("re-delete: got %v", err)
	}
}

func TestPoolCascadeDelete(t *testing.T) {
	c := testConn(t)
	ctx := context.Background()
	mustPool(t, c, "doomed")
	u := mustUser(t, c, "doomed", "user@example.com")
	_, _ = c.Clients().Create(ctx, repository.CreateClientInput{
		ClientID: "app_doomed", ClientSecret: "s", PoolID: "doomed", RedirectURIs: []string{"https://x/cb"},
	})
	g, _ := c.Groups().Create(ctx, repository.CreateGroupInput{PoolID: "doomed", Name: "g"})
	_ = c.Groups().AddUser(ctx, "doomed", u.ID, g.ID)
	_, _ = c.MFADevices().Create(ctx, repository.CreateMFADeviceInput{
		PoolID: "doomed", UserID: u.ID, SecretKey: "S",
	})

	if err := c.Pools().Delete(ctx, "doomed"); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}

	if _, err := c.Pools().Get(ctx, "doomed"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("pool must be gone: %v", err)
	}
	if _, err := c.Users().Get(ctx, "doomed", u.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("user must be gone: %v", err)
	}
	if _, err := c.Clients().Get(ctx, "app_doomed"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("client must be gone: %v", err)
	}
	// El email queda liberado para un pool futuro con el mismo id.
	mustPool(t, c, "doomed")
	mustUser(t, c, "doomed", "user@example.com")
}
