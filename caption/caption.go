// Package caption produces alt text for Open Graph images. A generative
// model is used when configured; any failure falls back to a caption built
// from the page title.
package caption

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// MaxLength is the longest caption returned, in runes.
const MaxLength = 125

// Input describes the image being captioned.
type Input struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
}

// Captioner generates alt text.
type Captioner interface {
	Caption(ctx context.Context, in Input) (string, error)
}

// GenAI captions images with a Gemini model.
type GenAI struct {
	client *genai.Client
	model  string
}

// NewGenAI creates a Gemini-backed captioner.
func NewGenAI(ctx context.Context, apiKey, model string) (*GenAI, error) {
	if apiKey == "" {
		return nil, errors.New("caption: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("caption: create client: %w", err)
	}
	return &GenAI{client: client, model: model}, nil
}

// Caption asks the model for a one-sentence alt text.
func (g *GenAI) Caption(ctx context.Context, in Input) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(Prompt(in)), nil)
	if err != nil {
		return "", fmt.Errorf("caption: generate: %w", err)
	}
	text := Clean(resp.Text())
	if text == "" {
		return "", errors.New("caption: empty response")
	}
	return text, nil
}

// Prompt builds the model instruction for in.
func Prompt(in Input) string {
	var b strings.Builder
	b.WriteString("Write alt text for the social preview image of a web page. ")
	fmt.Fprintf(&b, "Reply with one plain sentence under %d characters, no quotes.\n", MaxLength)
	fmt.Fprintf(&b, "Page title: %s\n", in.Title)
	if in.Description != "" {
		fmt.Fprintf(&b, "Page description: %s\n", in.Description)
	}
	if in.ImageURL != "" {
		fmt.Fprintf(&b, "Image URL: %s\n", in.ImageURL)
	}
	if in.SiteName != "" {
		fmt.Fprintf(&b, "Site: %s\n", in.SiteName)
	}
	return b.String()
}

// Clean normalizes model output to a single line of at most MaxLength runes.
func Clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, "\"'` ")
	if utf8.RuneCountInString(s) > MaxLength {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:MaxLength-1])) + "…"
	}
	return s
}

// Default is the caption used when no model is available or it fails.
func Default(in Input) string {
	switch {
	case in.Title != "" && in.SiteName != "" && in.Title != in.SiteName:
		return Clean(in.Title + " - " + in.SiteName)
	case in.Title != "":
		return Clean(in.Title)
	case in.SiteName != "":
		return Clean(in.SiteName)
	}
	return "Preview image"
}

// Fallback wraps a Captioner so that Caption never fails. A nil Next always
// yields the default caption.
type Fallback struct {
	Next    Captioner
	Timeout time.Duration
}

// Caption implements Captioner.
func (f Fallback) Caption(ctx context.Context, in Input) (string, error) {
	if f.Next == nil {
		return Default(in), nil
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	text, err := f.Next.Caption(ctx, in)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn().Err(err).Str("title", in.Title).Msg("caption generation failed, using default")
		return Default(in), nil
	}
	return Clean(text), nil
}
