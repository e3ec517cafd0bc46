package caption

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCaptioner struct {
	text  string
	err   error
	delay time.Duration
}

func (s stubCaptioner) Caption(ctx context.Context, in Input) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestDefault(t *testing.T) {
	assert.Equal(t, "Hello - Folio", Default(Input{Title: "Hello", SiteName: "Folio"}))
	assert.Equal(t, "Folio", Default(Input{Title: "Folio", SiteName: "Folio"}))
	assert.Equal(t, "Folio", Default(Input{SiteName: "Folio"}))
	assert.Equal(t, "Preview image", Default(Input{}))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "A laptop on a desk", Clean("  \"A laptop\n on a desk\"  "))

	long := Clean(strings.Repeat("word ", 60))
	assert.Equal(t, MaxLength, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestFallbackUsesNext(t *testing.T) {
	f := Fallback{Next: stubCaptioner{text: "'Screenshot of a dashboard'"}}
	got, err := f.Caption(context.Background(), Input{Title: "Dash"})
	require.NoError(t, err)
	assert.Equal(t, "Screenshot of a dashboard", got)
}

func TestFallbackOnError(t *testing.T) {
	f := Fallback{Next: stubCaptioner{err: errors.New("quota")}}
	got, err := f.Caption(context.Background(), Input{Title: "Case study", SiteName: "Folio"})
	require.NoError(t, err)
	assert.Equal(t, "Case study - Folio", got)
}

func TestFallbackOnEmptyAndNil(t *testing.T) {
	got, err := Fallback{Next: stubCaptioner{text: "  "}}.Caption(context.Background(), Input{Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, "X", got)

	got, err = Fallback{}.Caption(context.Background(), Input{Title: "Y"})
	require.NoError(t, err)
	assert.Equal(t, "Y", got)
}

func TestFallbackTimeout(t *testing.T) {
	f := Fallback{Next: stubCaptioner{text: "late", delay: time.Second}, Timeout: 20 * time.Millisecond}
	got, err := f.Caption(context.Background(), Input{Title: "Slow"})
	require.NoError(t, err)
	assert.Equal(t, "Slow", got)
}

func TestPrompt(t *testing.T) {
	p := Prompt(Input{Title: "T", Description: "D", SiteName: "S"})
	assert.Contains(t, p, "Page title: T")
	assert.Contains(t, p, "Page description: D")
	assert.NotContains(t, p, "Image URL")
}

func TestNewGenAIRequiresKey(t *testing.T) {
	_, err := NewGenAI(context.Background(), "", "gemini-2.0-flash")
	assert.Error(t, err)
}
