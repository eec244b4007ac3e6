package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegsharov/converse-server/internal/store"
)

type fakeIdentityStore struct {
	nextID     int64
	identities map[string]*store.Identity
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{identities: make(map[string]*store.Identity)}
}

func (f *fakeIdentityStore) CreateIdentity(_ context.Context, username, passwordHash string) (*store.Identity, error) {
	f.nextID++
	ident := &store.Identity{
		ID:           f.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Status:       store.PresenceOffline,
		CreatedAt:    time.Now(),
	}
	f.identities[username] = ident
	return ident, nil
}

func (f *fakeIdentityStore) GetIdentityByID(_ context.Context, id int64) (*store.Identity, error) {
	for _, ident := range f.identities {
		if ident.ID == id {
			return ident, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeIdentityStore) GetIdentityByUsername(_ context.Context, username string) (*store.Identity, error) {
	ident, ok := f.identities[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ident, nil
}

func (f *fakeIdentityStore) UpdatePresence(_ context.Context, id int64, status store.PresenceStatus, lastSeen time.Time) error {
	return nil
}

func (f *fakeIdentityStore) SearchIdentities(_ context.Context, query string) ([]*store.Identity, error) {
	return nil, nil
}

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "converse",
		Audience: "converse-clients",
		TTL:      time.Hour,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(newFakeIdentityStore(), testJWTConfig())
	ctx := context.Background()

	token, err := svc.Register(ctx, "alice", "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identityID, username, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), identityID)
	assert.Equal(t, "alice", username)

	loginToken, err := svc.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, loginToken)

	_, err = svc.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newFakeIdentityStore(), testJWTConfig())
	ctx := context.Background()

	_, err := svc.Register(ctx, "ab", "secret123")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = svc.Register(ctx, "alice", "short")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = svc.Register(ctx, "alice", "secret123")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "secret456")
	assert.ErrorIs(t, err, ErrIdentityExists)
}

func TestVerifyTokenRejectsForgeries(t *testing.T) {
	svc := NewService(newFakeIdentityStore(), testJWTConfig())
	ctx := context.Background()

	token, err := svc.Register(ctx, "alice", "secret123")
	require.NoError(t, err)

	// Garbage token.
	_, _, err = svc.VerifyToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Token signed with a different secret.
	otherCfg := testJWTConfig()
	otherCfg.Secret = []byte("other-secret")
	forged, err := GenerateToken(otherCfg, 1, "alice")
	require.NoError(t, err)
	_, _, err = svc.VerifyToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Wrong issuer.
	wrongIssuer := testJWTConfig()
	wrongIssuer.Issuer = "someone-else"
	badIssuer, err := GenerateToken(wrongIssuer, 1, "alice")
	require.NoError(t, err)
	_, _, err = svc.VerifyToken(badIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The genuine token still verifies.
	_, _, err = svc.VerifyToken(token)
	assert.NoError(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TTL = -time.Minute

	token, err := GenerateToken(cfg, 1, "alice")
	require.NoError(t, err)

	svc := NewService(newFakeIdentityStore(), cfg)
	_, _, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
