package companies

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

type memoryCompaniesRepo struct {
	companies map[int64]Company
	admins    map[int64]AdminSeed
	nextID    int64
	failSeed  bool
}

func newMemoryCompaniesRepo() *memoryCompaniesRepo {
	return &memoryCompaniesRepo{companies: map[int64]Company{}, admins: map[int64]AdminSeed{}}
}

func (r *memoryCompaniesRepo) List(ctx context.Context) ([]Company, error) {
	var out []Company
	for _, c := range r.companies {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryCompaniesRepo) Get(ctx context.Context, id int64) (Company, error) {
	c, ok := r.companies[id]
	if !ok {
		return Company{}, httpx.ErrNotFound
	}
	return c, nil
}

func (r *memoryCompaniesRepo) CreateWithAdmin(ctx context.Context, company Company, admin AdminSeed) (Company, int64, error) {
	// Mirrors the transactional store: a failed admin insert leaves no
	// company row behind.
	if r.failSeed {
		return Company{}, 0, errors.New("admin insert failed")
	}
	r.nextID++
	company.ID = r.nextID
	company.IsActive = true
	r.companies[company.ID] = company
	r.admins[company.ID] = admin
	return company, company.ID * 100, nil
}

func (r *memoryCompaniesRepo) Update(ctx context.Context, company Company) (Company, error) {
	if _, ok := r.companies[company.ID]; !ok {
		return Company{}, httpx.ErrNotFound
	}
	r.companies[company.ID] = company
	return company, nil
}

var (
	superActor  = rbac.Actor{UserID: 1, Role: rbac.RoleSuperAdmin}
	tenantAdmin = rbac.Actor{UserID: 2, Role: rbac.RoleAdmin, CompanyID: 10}
)

func validBootstrap() BootstrapInput {
	return BootstrapInput{
		Name:          "Acme Logistics",
		Email:         "office@acme.test",
		AdminEmail:    "admin@acme.test",
		AdminName:     "Ada Admin",
		AdminPassword: "correct horse",
	}
}

func TestBootstrapReservedForSuperAdmin(t *testing.T) {
	svc := NewService(newMemoryCompaniesRepo())
	_, _, err := svc.Bootstrap(context.Background(), tenantAdmin, validBootstrap())
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestBootstrapCreatesCompanyWithSeedAdmin(t *testing.T) {
	repo := newMemoryCompaniesRepo()
	svc := NewService(repo)

	company, adminID, err := svc.Bootstrap(context.Background(), superActor, validBootstrap())
	require.NoError(t, err)
	require.NotZero(t, company.ID)
	require.NotZero(t, adminID)

	seed := repo.admins[company.ID]
	require.Equal(t, "admin@acme.test", seed.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(seed.PasswordHash), []byte("correct horse")))
}

func TestBootstrapFailureLeavesNoCompany(t *testing.T) {
	repo := newMemoryCompaniesRepo()
	repo.failSeed = true
	svc := NewService(repo)

	_, _, err := svc.Bootstrap(context.Background(), superActor, validBootstrap())
	require.Error(t, err)
	require.Empty(t, repo.companies)
}

func TestGetAndUpdateScopedToTenant(t *testing.T) {
	repo := newMemoryCompaniesRepo()
	svc := NewService(repo)
	company, _, err := svc.Bootstrap(context.Background(), superActor, validBootstrap())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), tenantAdmin, company.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	owner := rbac.Actor{UserID: 3, Role: rbac.RoleAdmin, CompanyID: company.ID}
	got, err := svc.Get(context.Background(), owner, company.ID)
	require.NoError(t, err)
	require.Equal(t, company.ID, got.ID)

	got.Phone = "+1-555-0100"
	_, err = svc.Update(context.Background(), owner, got)
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), tenantAdmin, got)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestListScope(t *testing.T) {
	repo := newMemoryCompaniesRepo()
	svc := NewService(repo)
	first, _, err := svc.Bootstrap(context.Background(), superActor, validBootstrap())
	require.NoError(t, err)
	input := validBootstrap()
	input.Name = "Borealis Freight"
	_, _, err = svc.Bootstrap(context.Background(), superActor, input)
	require.NoError(t, err)

	all, err := svc.List(context.Background(), superActor)
	require.NoError(t, err)
	require.Len(t, all, 2)

	owner := rbac.Actor{UserID: 3, Role: rbac.RoleAdmin, CompanyID: first.ID}
	own, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, first.ID, own[0].ID)
}
