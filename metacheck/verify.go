package metacheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// GooglebotUA is the default User-Agent used for verification.
const GooglebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

// maxBody caps how much of a page is read.
const maxBody = 5 << 20

// Result is the outcome of verifying one URL.
type Result struct {
	URL      string  `json:"url"`
	Status   int     `json:"status"`
	Attempts int     `json:"attempts"`
	Report   *Report `json:"report,omitempty"`
	Err      string  `json:"error,omitempty"`
}

// OK reports whether the page was fetched and its markup has no errors.
func (r Result) OK() bool {
	return r.Err == "" && r.Report != nil && r.Report.OK()
}

// Verifier fetches pages as a crawler and checks their markup.
type Verifier struct {
	Client      *http.Client
	UserAgent   string
	Attempts    int           // default 3
	Backoff     time.Duration // base delay, doubled per retry (default 500ms)
	Concurrency int           // default 4
}

func (v *Verifier) defaults() (client *http.Client, ua string, attempts int, backoff time.Duration) {
	client = v.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	ua = v.UserAgent
	if ua == "" {
		ua = GooglebotUA
	}
	attempts = v.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff = v.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return
}

// errStatus marks a response that should not be retried.
type errStatus struct{ code int }

func (e errStatus) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

// Verify fetches url, retrying network errors and 5xx responses with
// exponential backoff. 4xx responses are not retried.
func (v *Verifier) Verify(ctx context.Context, url string, expect Expect) Result {
	client, ua, attempts, backoff := v.defaults()
	res := Result{URL: url}

	var body string
	var err error
	for res.Attempts < attempts {
		res.Attempts++
		body, res.Status, err = fetch(ctx, client, url, ua)
		if err == nil {
			break
		}
		var es errStatus
		if errors.As(err, &es) && es.code < 500 {
			break
		}
		if res.Attempts == attempts || ctx.Err() != nil {
			break
		}
		delay := backoff << (res.Attempts - 1)
		log.Debug().Err(err).Str("url", url).Int("attempt", res.Attempts).Dur("retry_in", delay).Msg("verify retry")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		res.Err = err.Error()
		return res
	}

	report, err := Check(body, expect)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Report = &report
	return res
}

// Target is a URL to verify with its expected values.
type Target struct {
	URL    string
	Expect Expect
}

// VerifyAll verifies targets in parallel and returns results in input order.
func (v *Verifier) VerifyAll(ctx context.Context, targets []Target) []Result {
	limit := v.Concurrency
	if limit <= 0 {
		limit = 4
	}
	results := make([]Result, len(targets))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results[i] = v.Verify(ctx, t.URL, t.Expect)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func fetch(ctx context.Context, client *http.Client, url, ua string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, errStatus{code: 400}
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, errStatus{code: resp.StatusCode}
	}
	return string(data), resp.StatusCode, nil
}
