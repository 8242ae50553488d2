package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"globalchat/internal/mocks"
	"globalchat/pkg/types"
)

func newTestGateway(t *testing.T) (*Gateway, *mocks.MockUserDirectory) {
	t.Helper()
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockUserDirectory(ctrl)
	return NewGateway([]byte("test-secret"), "globalchat", dir, logs.GetLoggerFromLevel(slog.LevelDebug)), dir
}

func TestGateway_IssueAndResolve(t *testing.T) {
	req := require.New(t)
	gw, dir := newTestGateway(t)
	bob := types.Identity{ID: "bob", Username: "Bob", PreferredLanguage: "es", AutoTranslate: true}
	dir.EXPECT().LookupUser(gomock.Any(), "bob").Return(bob, nil)

	token, err := gw.IssueToken("bob", "Bob", time.Hour)
	req.NoError(err)

	got, err := gw.Resolve(context.Background(), token)
	req.NoError(err)
	req.Equal(bob, got)
}

func TestGateway_ResolveRejectsExpiredToken(t *testing.T) {
	gw, _ := newTestGateway(t)
	gw.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := gw.IssueToken("bob", "Bob", time.Hour)
	require.NoError(t, err)

	gw.now = time.Now
	_, err = gw.Resolve(context.Background(), token)
	require.ErrorIs(t, err, types.ErrUnauthenticated)
}

func TestGateway_ResolveRejectsForeignSignatureAndIssuer(t *testing.T) {
	req := require.New(t)
	gw, _ := newTestGateway(t)

	other := NewGateway([]byte("other-secret"), "globalchat", nil, gw.log)
	token, err := other.IssueToken("bob", "Bob", time.Hour)
	req.NoError(err)
	_, err = gw.Resolve(context.Background(), token)
	req.ErrorIs(err, types.ErrUnauthenticated)

	wrongIssuer := NewGateway([]byte("test-secret"), "someone-else", nil, gw.log)
	token, err = wrongIssuer.IssueToken("bob", "Bob", time.Hour)
	req.NoError(err)
	_, err = gw.Resolve(context.Background(), token)
	req.ErrorIs(err, types.ErrUnauthenticated)

	_, err = gw.Resolve(context.Background(), "garbage")
	req.ErrorIs(err, types.ErrUnauthenticated)
}

func TestGateway_ResolveRejectsNoneAlgorithm(t *testing.T) {
	gw, _ := newTestGateway(t)
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "bob",
		Issuer:    "globalchat",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = gw.Resolve(context.Background(), token)
	require.ErrorIs(t, err, types.ErrUnauthenticated)
}

func TestGateway_ResolveUnknownSubject(t *testing.T) {
	gw, dir := newTestGateway(t)
	dir.EXPECT().LookupUser(gomock.Any(), "ghost").Return(types.Identity{}, types.ErrUserNotFound)

	token, err := gw.IssueToken("ghost", "", time.Hour)
	require.NoError(t, err)
	_, err = gw.Resolve(context.Background(), token)
	require.ErrorIs(t, err, types.ErrUnauthenticated)
}

func TestGateway_ResolveMissingSubject(t *testing.T) {
	gw, _ := newTestGateway(t)
	token, err := gw.IssueToken("", "", time.Hour)
	require.NoError(t, err)
	_, err = gw.Resolve(context.Background(), token)
	require.ErrorIs(t, err, types.ErrUnauthenticated)
}
