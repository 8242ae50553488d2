package types

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingTranslator struct {
	calls atomic.Int32
	delay time.Duration
	fail  bool
}

func (c *countingTranslator) Translate(_ context.Context, text, lang string) (string, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.fail {
		return "", &TranslationError{Language: lang, Err: errors.New("backend down")}
	}
	return lang + ":" + text, nil
}

func TestTranslationCache_FillIfAbsentIsIdempotent(t *testing.T) {
	req := require.New(t)
	cache := NewTranslationCache(nil)
	tr := &countingTranslator{}

	first, created, err := cache.FillIfAbsent(context.Background(), "es", "en", "Hello", tr)
	req.NoError(err)
	req.True(created)
	req.Equal("es:Hello", first)

	second, created, err := cache.FillIfAbsent(context.Background(), "es", "en", "Hello", tr)
	req.NoError(err)
	req.False(created)
	req.Equal(first, second)
	req.Equal(int32(1), tr.calls.Load())
}

func TestTranslationCache_SourceLanguageIsNeverCached(t *testing.T) {
	req := require.New(t)
	cache := NewTranslationCache(nil)
	tr := &countingTranslator{}

	out, created, err := cache.FillIfAbsent(context.Background(), "en", "en", "Hello", tr)
	req.NoError(err)
	req.False(created)
	req.Equal("Hello", out)
	req.Zero(tr.calls.Load())
	req.Zero(cache.Len())
}

func TestTranslationCache_FailureIsNotCached(t *testing.T) {
	req := require.New(t)
	cache := NewTranslationCache(nil)
	tr := &countingTranslator{fail: true}

	_, _, err := cache.FillIfAbsent(context.Background(), "fr", "en", "Hello", tr)
	req.ErrorIs(err, ErrTranslationFailed)
	var te *TranslationError
	req.ErrorAs(err, &te)
	req.Equal("fr", te.Language)
	req.Zero(cache.Len())

	tr.fail = false
	out, created, err := cache.FillIfAbsent(context.Background(), "fr", "en", "Hello", tr)
	req.NoError(err)
	req.True(created)
	req.Equal("fr:Hello", out)
	req.Equal(int32(2), tr.calls.Load())
}

func TestTranslationCache_ConcurrentFillsShareOneCall(t *testing.T) {
	req := require.New(t)
	cache := NewTranslationCache(nil)
	tr := &countingTranslator{delay: 50 * time.Millisecond}

	const workers = 16
	var wg sync.WaitGroup
	var createdCount atomic.Int32
	results := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, created, err := cache.FillIfAbsent(context.Background(), "de", "en", "Hi", tr)
			if err == nil && created {
				createdCount.Add(1)
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	req.Equal(int32(1), tr.calls.Load())
	req.Equal(int32(1), createdCount.Load())
	for _, r := range results {
		req.Equal("de:Hi", r)
	}
}

// gatedTranslator blocks until released and reports the context state it saw.
type gatedTranslator struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	close(g.started)
	<-g.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return lang + ":" + text, nil
}

func TestTranslationCache_CanceledCallerDoesNotFailOthers(t *testing.T) {
	req := require.New(t)
	cache := NewTranslationCache(nil)
	tr := &gatedTranslator{started: make(chan struct{}), release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, _, err := cache.FillIfAbsent(ctx, "es", "en", "Hello", tr)
		firstDone <- err
	}()
	<-tr.started

	second := make(chan string, 1)
	go func() {
		out, _, err := cache.FillIfAbsent(context.Background(), "es", "en", "Hello", tr)
		req.NoError(err)
		second <- out
	}()

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(tr.release)

	req.NoError(<-firstDone)
	req.Equal("es:Hello", <-second)
	cached, ok := cache.Get("es")
	req.True(ok)
	req.Equal("es:Hello", cached)
}

func TestTranslationCache_SetNeverOverwrites(t *testing.T) {
	req := require.New(t)
	cache := NewTranslationCache(map[string]string{"es": "Hola"})

	req.False(cache.Set("es", "Buenas"))
	got, ok := cache.Get("es")
	req.True(ok)
	req.Equal("Hola", got)
	req.True(cache.Set("it", "Ciao"))
	req.Equal(2, cache.Len())
}

func TestTranslationCache_JSONRoundTrip(t *testing.T) {
	req := require.New(t)
	cache := NewTranslationCache(map[string]string{"es": "Hola"})

	data, err := cache.MarshalJSON()
	req.NoError(err)
	req.JSONEq(`{"es":"Hola"}`, string(data))

	parsed, err := ParseTranslations([]byte(`{"es":"Hola","en":"Hello"}`), "en")
	req.NoError(err)
	req.Equal(map[string]string{"es": "Hola"}, parsed.Snapshot())

	empty, err := ParseTranslations(nil, "en")
	req.NoError(err)
	req.Zero(empty.Len())

	_, err = ParseTranslations([]byte(`not json`), "en")
	req.Error(err)
}
