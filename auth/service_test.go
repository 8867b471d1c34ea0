package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "Alice@Example.com",
		Password: "supersafe",
		FullName: "Alice Supervisor",
	}

	ctx := context.Background()
	sup, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if sup.Role != RoleSupervisor {
		t.Fatalf("register: expected default role %s got %s", RoleSupervisor, sup.Role)
	}
	if sup.PasswordHash == req.Password {
		t.Fatal("register: password stored in clear text")
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Supervisor.ID != sup.ID {
		t.Fatalf("login: expected supervisor id %q got %q", sup.ID, resp.Supervisor.ID)
	}

	tokenID, tokenRole, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenID != sup.ID {
		t.Fatalf("verify token: expected %q got %q", sup.ID, tokenID)
	}
	if tokenRole != RoleSupervisor {
		t.Fatalf("verify token: expected role %s got %s", RoleSupervisor, tokenRole)
	}
}

func TestService_RegisterAdmin(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	sup, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "owner@example.com",
		Password: "strongpassword",
		FullName: "Owner",
		Role:     RoleAdmin,
	})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if sup.Role != RoleAdmin {
		t.Fatalf("expected role %s got %s", RoleAdmin, sup.Role)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{
		Email:    "alice@example.com",
		Password: "short",
		FullName: "Alice Supervisor",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterRequest{Email: "", Password: "strongpassword", FullName: " "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing fields, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterRequest{
		Email:    "bob@example.com",
		Password: "strongpassword",
		FullName: "Bob",
		Role:     "receptionist",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "strongpassword",
		FullName: "Alice Supervisor",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	req.Email = "ALICE@example.com"
	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	ctx := context.Background()

	_, err := svc.Login(ctx, LoginRequest{Email: "unknown@example.com", Password: "irrelevant"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "strongpassword", FullName: "A"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "wrongpassword"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestService_VerifyTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	repo := newFakeRepository()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, "test-secret").
		WithTokenTTL(time.Hour).
		WithClock(func() time.Time { return now })

	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "strongpassword", FullName: "A"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "strongpassword"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	other := NewService(repo, "another-secret").WithClock(func() time.Time { return now })
	if _, _, err := other.VerifyToken(resp.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, _, err := svc.VerifyToken(resp.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	if _, _, err := svc.VerifyToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestService_GetSupervisor(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	sup, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "strongpassword", FullName: "A"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := svc.GetSupervisor(context.Background(), sup.ID)
	if err != nil {
		t.Fatalf("get supervisor: %v", err)
	}
	if got.Email != "a@example.com" {
		t.Fatalf("expected email a@example.com got %q", got.Email)
	}

	if _, err := svc.GetSupervisor(context.Background(), "not-a-uuid"); !errors.Is(err, ErrSupervisorNotFound) {
		t.Fatalf("expected ErrSupervisorNotFound, got %v", err)
	}
}

type fakeRepository struct {
	byEmail map[string]Supervisor
	byID    map[string]Supervisor
	nextID  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: make(map[string]Supervisor),
		byID:    make(map[string]Supervisor),
		nextID:  1,
	}
}

func (f *fakeRepository) CreateSupervisor(_ context.Context, params CreateSupervisorParams) (Supervisor, error) {
	email := strings.ToLower(params.Email)
	if _, exists := f.byEmail[email]; exists {
		return Supervisor{}, ErrDuplicateEmail
	}

	sup := Supervisor{
		ID:           fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID),
		Email:        email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.nextID++

	f.byEmail[email] = sup
	f.byID[sup.ID] = sup
	return sup, nil
}

func (f *fakeRepository) GetByEmail(_ context.Context, email string) (Supervisor, error) {
	sup, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Supervisor{}, ErrSupervisorNotFound
	}
	return sup, nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (Supervisor, error) {
	sup, ok := f.byID[id]
	if !ok {
		return Supervisor{}, ErrSupervisorNotFound
	}
	return sup, nil
}
