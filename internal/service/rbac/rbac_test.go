package rbac_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/pagination"
	"github.com/vetchium/idcore/internal/service/rbac"
	"github.com/vetchium/idcore/internal/store/memory"
)

type fixture struct {
	repo   *memory.Store
	engine *rbac.Engine
	tenant *domain.Tenant
	admin  *domain.Principal // superadmin del tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	engine := rbac.New(rbac.Deps{Repo: repo})

	tenant := &domain.Tenant{
		ID:          uuid.NewString(),
		Kind:        domain.TenantAgency,
		DisplayName: "Acme Staffing",
		RegionCode:  "AGY1",
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Tenants().Create(context.Background(), tenant); err != nil {
		t.Fatal(err)
	}

	f := &fixture{repo: repo, engine: engine, tenant: tenant}
	f.admin = f.addUser(t, "root@acme.test", domain.PrincipalActive, domain.RoleSuperAdmin)
	return f
}

func (f *fixture) addUser(t *testing.T, email string, st domain.PrincipalStatus, roles ...domain.Role) *domain.Principal {
	t.Helper()
	now := time.Now().UTC()
	p := &domain.Principal{
		ID:        uuid.NewString(),
		TenantID:  f.tenant.ID,
		Email:     email,
		Status:    st,
		Language:  "en",
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.repo.Principals().Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLastAdminGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Con un único superadmin activo, ni de-rolear ni deshabilitar.
	if err := f.engine.RemoveRole(ctx, f.admin, f.admin.ID, domain.RoleSuperAdmin); !errors.Is(err, rbac.ErrLastAdmin) {
		t.Fatalf("RemoveRole: err=%v, quiero ErrLastAdmin", err)
	}
	if err := f.engine.DisableUser(ctx, f.admin, f.admin.ID); !errors.Is(err, rbac.ErrLastAdmin) {
		t.Fatalf("DisableUser: err=%v, quiero ErrLastAdmin", err)
	}
	if !errors.Is(rbac.ErrLastAdmin, domain.ErrInvariantViolation) {
		t.Fatal("ErrLastAdmin debe mapear a InvariantViolation")
	}

	// Un segundo superadmin ACTIVO desbloquea la operación.
	second := f.addUser(t, "backup@acme.test", domain.PrincipalActive, domain.RoleSuperAdmin)
	if err := f.engine.RemoveRole(ctx, f.admin, f.admin.ID, domain.RoleSuperAdmin); err != nil {
		t.Fatalf("RemoveRole con segundo admin: %v", err)
	}

	// Y ahora second es el último: el invariante lo protege a él.
	if err := f.engine.DisableUser(ctx, second, second.ID); !errors.Is(err, rbac.ErrLastAdmin) {
		t.Fatalf("err=%v, quiero ErrLastAdmin", err)
	}
}

func TestLastAdminIgnoresDisabledHolders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Un superadmin deshabilitado no cuenta para el invariante.
	f.addUser(t, "dormant@acme.test", domain.PrincipalDisabled, domain.RoleSuperAdmin)

	if err := f.engine.RemoveRole(ctx, f.admin, f.admin.ID, domain.RoleSuperAdmin); !errors.Is(err, rbac.ErrLastAdmin) {
		t.Fatalf("err=%v, quiero ErrLastAdmin", err)
	}
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.addUser(t, "ana@acme.test", domain.PrincipalActive, domain.RoleMember)

	t.Run("ok", func(t *testing.T) {
		if err := f.engine.AssignRole(ctx, f.admin, member.ID, domain.RoleInviteUsers); err != nil {
			t.Fatal(err)
		}
		got, err := f.repo.Principals().GetByID(ctx, member.ID)
		if err != nil || !got.HasRole(domain.RoleInviteUsers) {
			t.Fatalf("rol no asignado: %v %v", got, err)
		}
	})
	t.Run("duplicado", func(t *testing.T) {
		if err := f.engine.AssignRole(ctx, f.admin, member.ID, domain.RoleInviteUsers); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("err=%v, quiero ErrConflict", err)
		}
	})
	t.Run("rol inexistente para el tipo de tenant", func(t *testing.T) {
		// "admin" es del tenant admin global, no de agencies.
		if err := f.engine.AssignRole(ctx, f.admin, member.ID, domain.RoleAdmin); !errors.Is(err, rbac.ErrInvalidRole) {
			t.Fatalf("err=%v, quiero ErrInvalidRole", err)
		}
	})
	t.Run("target inexistente", func(t *testing.T) {
		if err := f.engine.AssignRole(ctx, f.admin, uuid.NewString(), domain.RoleMember); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err=%v, quiero ErrNotFound", err)
		}
	})
	t.Run("actor sin capability", func(t *testing.T) {
		if err := f.engine.AssignRole(ctx, member, f.admin.ID, domain.RoleMember); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("err=%v, quiero ErrForbidden", err)
		}
	})
}

func TestManageUsersRoleWithoutBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// manage_users alcanza sin ser superadmin.
	manager := f.addUser(t, "hr@acme.test", domain.PrincipalActive, domain.RoleManageUsers)
	target := f.addUser(t, "ana@acme.test", domain.PrincipalActive, domain.RoleMember)

	if err := f.engine.AssignRole(ctx, manager, target.ID, domain.RoleManageDomains); err != nil {
		t.Fatalf("manager con manage_users rechazado: %v", err)
	}
}

func TestCrossTenantTargetIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &domain.Tenant{
		ID:        uuid.NewString(),
		Kind:      domain.TenantAgency,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.repo.Tenants().Create(ctx, other); err != nil {
		t.Fatal(err)
	}
	foreign := &domain.Principal{
		ID:       uuid.NewString(),
		TenantID: other.ID,
		Email:    "out@other.test",
		Status:   domain.PrincipalActive,
		Roles:    []domain.Role{domain.RoleMember},
	}
	if err := f.repo.Principals().Create(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	// Nunca Forbidden: indistinguible de inexistente.
	if err := f.engine.AssignRole(ctx, f.admin, foreign.ID, domain.RoleMember); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("AssignRole: err=%v, quiero ErrNotFound", err)
	}
	if err := f.engine.DisableUser(ctx, f.admin, foreign.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DisableUser: err=%v, quiero ErrNotFound", err)
	}
}

func TestEnableDisableStateNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.addUser(t, "ana@acme.test", domain.PrincipalActive, domain.RoleMember)

	if err := f.engine.EnableUser(ctx, f.admin, member.ID); !errors.Is(err, rbac.ErrAlreadyInState) {
		t.Fatalf("enable de cuenta activa: err=%v", err)
	}
	if err := f.engine.DisableUser(ctx, f.admin, member.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.DisableUser(ctx, f.admin, member.ID); !errors.Is(err, rbac.ErrAlreadyInState) {
		t.Fatalf("disable de cuenta deshabilitada: err=%v", err)
	}
	if err := f.engine.EnableUser(ctx, f.admin, member.ID); err != nil {
		t.Fatal(err)
	}
}

func TestListUsersPaginated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 24 miembros + el superadmin del fixture = 25 principals.
	for i := 0; i < 24; i++ {
		f.addUser(t, fmt.Sprintf("user%02d@acme.test", i), domain.PrincipalActive, domain.RoleMember)
	}

	seen := map[string]bool{}
	cursor := ""
	var sizes []int
	for {
		page, err := f.engine.ListUsers(ctx, f.admin, pagination.Request{Limit: 10, Cursor: cursor})
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, len(page.Items))
		for _, p := range page.Items {
			if seen[p.ID] {
				t.Fatalf("principal %s repetido entre páginas", p.Email)
			}
			seen[p.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(seen) != 25 {
		t.Fatalf("vistos %d, quiero 25 (páginas %v)", len(seen), sizes)
	}
	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Fatalf("tamaños %v, quiero [10 10 5]", sizes)
	}

	t.Run("límite inválido", func(t *testing.T) {
		if _, err := f.engine.ListUsers(ctx, f.admin, pagination.Request{Limit: 0}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("sin capability", func(t *testing.T) {
		member := f.addUser(t, "zzz-plain@acme.test", domain.PrincipalActive, domain.RoleMember)
		if _, err := f.engine.ListUsers(ctx, member, pagination.Request{Limit: 10}); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("err=%v", err)
		}
	})
}
