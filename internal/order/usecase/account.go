package usecase

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

// RegisterBuyer hashes and stores a local buyer credential. Most buyers
// authenticate via the JWKS-backed auth port; this path exists for
// storefronts that still need a local email/password account.
func (s *Service) RegisterBuyer(ctx context.Context, email string, buyerID uint32, password string) error {
	if email == "" || password == "" {
		return apperr.New(apperr.EmptyInputData, "email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, "hash password", err)
	}
	return s.Repo.SaveBuyerCredential(ctx, email, buyerID, hash)
}

// AuthenticateBuyer verifies a local email/password pair, the login half
// of the same flow, returning the matching buyer ID on success.
func (s *Service) AuthenticateBuyer(ctx context.Context, email, password string) (uint32, error) {
	buyerID, hash, err := s.Repo.GetBuyerCredential(ctx, email)
	if err != nil {
		return 0, err
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return 0, apperr.New(apperr.InvalidCredential, "wrong password")
	}
	return buyerID, nil
}
