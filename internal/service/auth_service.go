package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const walletNumberAttempts = 5

// AuthServiceImpl implements ports.AuthService. Sign-in is delegated to an
// external identity provider; first sign-in provisions the user's wallet.
type AuthServiceImpl struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	provider   ports.IdentityProvider
	tokens     ports.TokenService
	audit      ports.AuditService
	log        zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	provider ports.IdentityProvider,
	tokens ports.TokenService,
	audit ports.AuditService,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		provider:   provider,
		tokens:     tokens,
		audit:      audit,
		log:        log,
	}
}

// AuthURL returns the identity provider's consent URL for the given state.
func (s *AuthServiceImpl) AuthURL(state string) string {
	return s.provider.AuthURL(state)
}

// LoginWithCode exchanges the provider's authorization code, upserts the
// user, provisions a wallet on first sign-in, and issues a session token.
func (s *AuthServiceImpl) LoginWithCode(ctx context.Context, code, clientIP string) (*ports.LoginResult, error) {
	if code == "" {
		return nil, apperror.Validation("authorization code is required")
	}

	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, apperror.ErrInvalidToken()
	}

	user, err := s.resolveUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch wallet: %w", err))
	}
	if wallet == nil {
		wallet, err = s.provisionWallet(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}

	token, expiresAt, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("issue token: %w", err))
	}

	s.audit.Record(ctx, domain.AuditLog{
		UserID:       &user.ID,
		Action:       domain.AuditActionLogin,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		IPAddress:    clientIP,
	})
	s.log.Info().
		Str("user_id", user.ID.String()).
		Str("email", user.Email).
		Msg("user logged in")

	return &ports.LoginResult{
		Token:        token,
		ExpiresAt:    expiresAt,
		User:         user,
		WalletNumber: wallet.WalletNumber,
	}, nil
}

// resolveUser finds the user by provider subject, links by email for
// pre-existing accounts, or creates a new user.
func (s *AuthServiceImpl) resolveUser(ctx context.Context, identity *ports.Identity) (*domain.User, error) {
	user, err := s.userRepo.GetByGoogleID(ctx, identity.SubjectID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup user: %w", err))
	}
	if user != nil {
		if user.Name != identity.Name || !equalPicture(user.Picture, identity.Picture) {
			user.Name = identity.Name
			user.Picture = identity.Picture
			if err := s.userRepo.Update(ctx, user); err != nil {
				s.log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to refresh profile")
			}
		}
		return user, nil
	}

	user, err = s.userRepo.GetByEmail(ctx, identity.Email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup user by email: %w", err))
	}
	if user != nil {
		user.GoogleID = identity.SubjectID
		user.Name = identity.Name
		user.Picture = identity.Picture
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("link identity: %w", err))
		}
		return user, nil
	}

	now := time.Now().UTC()
	user = &domain.User{
		ID:        uuid.New(),
		GoogleID:  identity.SubjectID,
		Email:     identity.Email,
		Name:      identity.Name,
		Picture:   identity.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}
	return user, nil
}

// provisionWallet creates the user's wallet with a unique public number.
func (s *AuthServiceImpl) provisionWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	for attempt := 0; attempt < walletNumberAttempts; attempt++ {
		number, err := generateWalletNumber()
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("generate wallet number: %w", err))
		}
		existing, err := s.walletRepo.GetByNumber(ctx, number)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("check wallet number: %w", err))
		}
		if existing != nil {
			continue
		}

		now := time.Now().UTC()
		wallet := &domain.Wallet{
			ID:           uuid.New(),
			UserID:       userID,
			WalletNumber: number,
			Balance:      0,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.walletRepo.Create(ctx, wallet); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
		s.log.Info().
			Str("user_id", userID.String()).
			Str("wallet_number", number).
			Msg("wallet provisioned")
		return wallet, nil
	}
	return nil, apperror.InternalError(fmt.Errorf("could not allocate a unique wallet number after %d attempts", walletNumberAttempts))
}

// generateWalletNumber produces a random wallet number with a non-zero
// leading digit.
func generateWalletNumber() (string, error) {
	digits := make([]byte, domain.WalletNumberLength)
	for i := range digits {
		max := int64(10)
		if i == 0 {
			max = 9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(max))
		if err != nil {
			return "", err
		}
		d := n.Int64()
		if i == 0 {
			d++ // 1-9
		}
		digits[i] = byte('0' + d)
	}
	return string(digits), nil
}

func equalPicture(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
