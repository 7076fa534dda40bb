package identity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"keepernest/pkg/domain"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("EMPLOYEE_E1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "EMPLOYEE_E1" {
		t.Fatalf("password stored in clear")
	}
	if err := h.Compare(hash, "EMPLOYEE_E1"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := h.Compare(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch")
	}
	if err := h.Compare("", "anything"); err == nil {
		t.Fatalf("empty hash must never match")
	}
}

func TestBcryptHasherRejectsOverlongPassword(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash(strings.Repeat("x", 80))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDefaultCost(t *testing.T) {
	if NewBcryptHasher(0).cost != bcrypt.DefaultCost {
		t.Fatalf("zero cost should select the default")
	}
}

const secret = "0123456789abcdef0123"

func TestJWTIssueVerify(t *testing.T) {
	issuer, err := NewJWTIssuer(secret, time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer.SetNowFunc(func() time.Time { return fixed })

	actor := domain.Actor{EmployeeID: "E1", Email: "e1@example.com", Role: domain.RoleAdmin}
	token, expires, err := issuer.Issue(actor)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.Equal(fixed.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expires)
	}
	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != actor {
		t.Fatalf("actor mismatch: %+v", got)
	}

	issuer.SetNowFunc(func() time.Time { return fixed.Add(2 * time.Hour) })
	if _, err := issuer.Verify(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	a, _ := NewJWTIssuer(secret, 0)
	b, _ := NewJWTIssuer(secret+"-other", 0)
	token, _, err := a.Issue(domain.Actor{EmployeeID: "E1", Role: domain.RoleEmployee})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Fatalf("expected signature failure")
	}
	if _, err := a.Verify("not-a-token"); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestJWTShortSecret(t *testing.T) {
	if _, err := NewJWTIssuer("short", 0); err == nil {
		t.Fatalf("expected short secret rejection")
	}
}
