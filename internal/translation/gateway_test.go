package translation_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"globalchat/internal/mocks"
	"globalchat/internal/translation"
	"globalchat/pkg/types"
)

func TestGateway_TranslateNormalizesAndCleans(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().Complete(gomock.Any(), "Hello", "es").Return("  “Hola”\n", nil)

	gw := translation.NewGateway(backend, time.Second, logs.GetLoggerFromLevel(slog.LevelDebug))
	out, err := gw.Translate(context.Background(), "Hello", " Spanish ")
	req.NoError(err)
	req.Equal("Hola", out)
}

func TestGateway_TranslateStripsEnclosingQuotes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"straight double", `"Hola"`},
		{"curly double", "“Hola”"},
		{"straight single", "'Hola'"},
		{"curly single", "‘Hola’"},
		{"guillemets", "«Hola»"},
		{"nested with whitespace", " '\"Hola\"' \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			backend := mocks.NewMockBackend(ctrl)
			backend.EXPECT().Complete(gomock.Any(), "Hello", "es").Return(tt.raw, nil)

			gw := translation.NewGateway(backend, time.Second, logs.GetLoggerFromLevel(slog.LevelDebug))
			out, err := gw.Translate(context.Background(), "Hello", "es")
			req.NoError(err)
			req.Equal("Hola", out)
		})
	}
}

func TestGateway_TranslateWrapsBackendFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	cause := errors.New("quota exceeded")
	backend.EXPECT().Complete(gomock.Any(), "Hello", "fr").Return("", cause)

	gw := translation.NewGateway(backend, time.Second, logs.GetLoggerFromLevel(slog.LevelDebug))
	_, err := gw.Translate(context.Background(), "Hello", "fr")

	var te *types.TranslationError
	req.ErrorAs(err, &te)
	req.Equal("fr", te.Language)
	req.ErrorIs(err, cause)
	req.ErrorIs(err, types.ErrTranslationFailed)
}

func TestGateway_TranslateRejectsEmptyResult(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().Complete(gomock.Any(), gomock.Any(), "de").Return(`""`, nil)

	gw := translation.NewGateway(backend, time.Second, logs.GetLoggerFromLevel(slog.LevelDebug))
	_, err := gw.Translate(context.Background(), "Hello", "de")
	req.ErrorIs(err, translation.ErrEmptyResult)
	req.ErrorIs(err, types.ErrTranslationFailed)
}

func TestGateway_TranslateRejectsEmptyTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)

	gw := translation.NewGateway(backend, time.Second, logs.GetLoggerFromLevel(slog.LevelDebug))
	_, err := gw.Translate(context.Background(), "Hello", "   ")
	require.ErrorIs(t, err, translation.ErrEmptyTarget)
}

func TestGateway_TranslateAppliesTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().Complete(gomock.Any(), gomock.Any(), "ja").DoAndReturn(
		func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	)

	gw := translation.NewGateway(backend, 20*time.Millisecond, logs.GetLoggerFromLevel(slog.LevelDebug))
	start := time.Now()
	_, err := gw.Translate(context.Background(), "Hello", "ja")
	req.ErrorIs(err, context.DeadlineExceeded)
	req.Less(time.Since(start), time.Second)
}

func TestDisabled_AlwaysFails(t *testing.T) {
	gw := translation.NewGateway(translation.Disabled{}, time.Second, logs.GetLoggerFromLevel(slog.LevelDebug))
	_, err := gw.Translate(context.Background(), "Hello", "es")
	require.ErrorIs(t, err, translation.ErrDisabled)
}
