package users_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"globalchat/internal/mocks"
	"globalchat/internal/users"
	"globalchat/pkg/types"
)

func TestDirectory_LookupUserCachesStoreHits(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockUserStore(ctrl)
	store.EXPECT().GetUser(gomock.Any(), "bob").
		Return(&types.Identity{ID: "bob", Username: "Bob", PreferredLanguage: "es", AutoTranslate: true}, nil).
		Times(1)

	dir := users.NewDirectory(store, time.Minute, logs.GetLoggerFromLevel(slog.LevelDebug))
	for i := 0; i < 3; i++ {
		got, err := dir.LookupUser(context.Background(), "bob")
		req.NoError(err)
		req.Equal("es", got.PreferredLanguage)
	}
}

func TestDirectory_LookupUserExpiresAndInvalidates(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockUserStore(ctrl)
	store.EXPECT().GetUser(gomock.Any(), "bob").
		Return(&types.Identity{ID: "bob", Username: "Bob", PreferredLanguage: "es"}, nil).
		Times(2)

	dir := users.NewDirectory(store, time.Hour, logs.GetLoggerFromLevel(slog.LevelDebug))
	_, err := dir.LookupUser(context.Background(), "bob")
	req.NoError(err)
	dir.Invalidate("bob")
	_, err = dir.LookupUser(context.Background(), "bob")
	req.NoError(err)
}

func TestDirectory_LookupUnknownUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockUserStore(ctrl)
	store.EXPECT().GetUser(gomock.Any(), "ghost").Return(nil, types.ErrUserNotFound)

	dir := users.NewDirectory(store, time.Minute, logs.GetLoggerFromLevel(slog.LevelDebug))
	_, err := dir.LookupUser(context.Background(), "ghost")
	require.ErrorIs(t, err, types.ErrUserNotFound)
}

func TestDirectory_RegisterNormalizesAndValidates(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockUserStore(ctrl)
	store.EXPECT().UpsertUser(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	dir := users.NewDirectory(store, time.Minute, logs.GetLoggerFromLevel(slog.LevelDebug))

	got, err := dir.Register(context.Background(), types.Identity{ID: "carol", PreferredLanguage: "French", AutoTranslate: true})
	req.NoError(err)
	req.Equal("fr", got.PreferredLanguage)
	req.Equal("carol", got.Username)

	got, err = dir.Register(context.Background(), types.Identity{ID: "dan", Username: "Dan"})
	req.NoError(err)
	req.Equal("en", got.PreferredLanguage)

	_, err = dir.Register(context.Background(), types.Identity{ID: "bad id!", Username: "x"})
	req.ErrorIs(err, users.ErrInvalidUserID)

	_, err = dir.Register(context.Background(), types.Identity{ID: "eve", Username: "Eve", PreferredLanguage: "not a language"})
	req.ErrorIs(err, users.ErrInvalidProfile)

	cached, err := dir.LookupUser(context.Background(), "carol")
	req.NoError(err)
	req.True(cached.AutoTranslate)
}

func TestDirectory_UpdateSettings(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockUserStore(ctrl)
	store.EXPECT().GetUser(gomock.Any(), "bob").
		Return(&types.Identity{ID: "bob", Username: "Bob", PreferredLanguage: "en"}, nil)
	store.EXPECT().UpsertUser(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, u *types.Identity) error {
			req.Equal("de", u.PreferredLanguage)
			req.True(u.AutoTranslate)
			return nil
		},
	)

	dir := users.NewDirectory(store, time.Minute, logs.GetLoggerFromLevel(slog.LevelDebug))
	lang, auto := "german", true
	got, err := dir.UpdateSettings(context.Background(), "bob", users.Settings{PreferredLanguage: &lang, AutoTranslate: &auto})
	req.NoError(err)
	req.Equal("de", got.PreferredLanguage)

	bad := "??"
	_, err = dir.UpdateSettings(context.Background(), "bob", users.Settings{PreferredLanguage: &bad})
	req.ErrorIs(err, users.ErrInvalidLanguage)
}
