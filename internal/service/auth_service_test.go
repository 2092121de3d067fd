package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type authTestDeps struct {
	userRepo   *mocks.MockUserRepository
	walletRepo *mocks.MockWalletRepository
	provider   *mocks.MockIdentityProvider
	tokens     *mocks.MockTokenService
	audit      *mocks.MockAuditService
}

func setupAuthService(t *testing.T) (*AuthServiceImpl, authTestDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	deps := authTestDeps{
		userRepo:   mocks.NewMockUserRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		provider:   mocks.NewMockIdentityProvider(ctrl),
		tokens:     mocks.NewMockTokenService(ctrl),
		audit:      mocks.NewMockAuditService(ctrl),
	}
	svc := NewAuthService(deps.userRepo, deps.walletRepo, deps.provider, deps.tokens, deps.audit, zerolog.Nop())
	return svc, deps
}

func TestAuthService_LoginWithCode_ExistingUser(t *testing.T) {
	svc, deps := setupAuthService(t)
	ctx := context.Background()

	user := &domain.User{ID: uuid.New(), GoogleID: "sub-1", Email: "a@example.com", Name: "Ada"}
	identity := &ports.Identity{SubjectID: "sub-1", Email: "a@example.com", Name: "Ada"}
	expiry := time.Now().Add(time.Hour)

	deps.provider.EXPECT().Exchange(ctx, "code-1").Return(identity, nil)
	deps.userRepo.EXPECT().GetByGoogleID(ctx, "sub-1").Return(user, nil)
	deps.walletRepo.EXPECT().GetByUserID(ctx, user.ID).Return(&domain.Wallet{
		ID:           uuid.New(),
		UserID:       user.ID,
		WalletNumber: "9876543210123",
	}, nil)
	deps.tokens.EXPECT().Generate(user.ID, user.Email).Return("jwt-token", expiry, nil)
	deps.audit.EXPECT().Record(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, entry domain.AuditLog) {
		assert.Equal(t, domain.AuditActionLogin, entry.Action)
		assert.Equal(t, "10.0.0.1", entry.IPAddress)
	})

	result, err := svc.LoginWithCode(ctx, "code-1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", result.Token)
	assert.Equal(t, "9876543210123", result.WalletNumber)
	assert.Equal(t, user.ID, result.User.ID)
}

func TestAuthService_LoginWithCode_FirstLoginProvisionsWallet(t *testing.T) {
	svc, deps := setupAuthService(t)
	ctx := context.Background()

	identity := &ports.Identity{SubjectID: "sub-new", Email: "new@example.com", Name: "New User"}

	deps.provider.EXPECT().Exchange(ctx, "code-2").Return(identity, nil)
	deps.userRepo.EXPECT().GetByGoogleID(ctx, "sub-new").Return(nil, nil)
	deps.userRepo.EXPECT().GetByEmail(ctx, "new@example.com").Return(nil, nil)

	var createdID uuid.UUID
	deps.userRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, u *domain.User) error {
		assert.Equal(t, "sub-new", u.GoogleID)
		assert.Equal(t, "new@example.com", u.Email)
		createdID = u.ID
		return nil
	})
	deps.walletRepo.EXPECT().GetByUserID(ctx, gomock.Any()).Return(nil, nil)
	deps.walletRepo.EXPECT().GetByNumber(ctx, gomock.Any()).Return(nil, nil)
	deps.walletRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, w *domain.Wallet) error {
		assert.Equal(t, createdID, w.UserID)
		assert.Len(t, w.WalletNumber, domain.WalletNumberLength)
		assert.Zero(t, w.Balance)
		return nil
	})
	deps.tokens.EXPECT().Generate(gomock.Any(), "new@example.com").Return("jwt-token", time.Now().Add(time.Hour), nil)
	deps.audit.EXPECT().Record(ctx, gomock.Any())

	result, err := svc.LoginWithCode(ctx, "code-2", "10.0.0.2")
	require.NoError(t, err)
	assert.NotEmpty(t, result.WalletNumber)
}

func TestAuthService_LoginWithCode_LinksByEmail(t *testing.T) {
	svc, deps := setupAuthService(t)
	ctx := context.Background()

	existing := &domain.User{ID: uuid.New(), Email: "old@example.com", Name: "Old Name"}
	identity := &ports.Identity{SubjectID: "sub-3", Email: "old@example.com", Name: "New Name"}

	deps.provider.EXPECT().Exchange(ctx, "code-3").Return(identity, nil)
	deps.userRepo.EXPECT().GetByGoogleID(ctx, "sub-3").Return(nil, nil)
	deps.userRepo.EXPECT().GetByEmail(ctx, "old@example.com").Return(existing, nil)
	deps.userRepo.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, u *domain.User) error {
		assert.Equal(t, "sub-3", u.GoogleID)
		assert.Equal(t, "New Name", u.Name)
		return nil
	})
	deps.walletRepo.EXPECT().GetByUserID(ctx, existing.ID).Return(&domain.Wallet{
		ID:           uuid.New(),
		UserID:       existing.ID,
		WalletNumber: "1112223334445",
	}, nil)
	deps.tokens.EXPECT().Generate(existing.ID, existing.Email).Return("jwt-token", time.Now().Add(time.Hour), nil)
	deps.audit.EXPECT().Record(ctx, gomock.Any())

	_, err := svc.LoginWithCode(ctx, "code-3", "10.0.0.3")
	require.NoError(t, err)
}

func TestAuthService_LoginWithCode_BadCode(t *testing.T) {
	svc, deps := setupAuthService(t)
	ctx := context.Background()

	deps.provider.EXPECT().Exchange(ctx, "bad").Return(nil, assertableErr("exchange failed"))

	result, err := svc.LoginWithCode(ctx, "bad", "10.0.0.4")
	assert.Nil(t, result)
	assertAppError(t, err, "AUTH_001")
}

func TestAuthService_LoginWithCode_EmptyCode(t *testing.T) {
	svc, _ := setupAuthService(t)

	result, err := svc.LoginWithCode(context.Background(), "", "10.0.0.5")
	assert.Nil(t, result)
	assertAppError(t, err, "VAL_001")
}

func TestGenerateWalletNumber(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		number, err := generateWalletNumber()
		require.NoError(t, err)
		require.Len(t, number, domain.WalletNumberLength)
		assert.NotEqual(t, byte('0'), number[0])
		_, err = strconv.ParseUint(number, 10, 64)
		require.NoError(t, err)
		seen[number] = true
	}
	// 13 random digits should essentially never collide in 50 draws.
	assert.Greater(t, len(seen), 45)
}
