package checker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"availwatch/internal/status"
)

type stubSource struct {
	details AppDetails
	err     error
	calls   int
}

func (s *stubSource) AppDetails(ctx context.Context, appID string) (AppDetails, error) {
	s.calls++
	return s.details, s.err
}

func boolPtr(v bool) *bool { return &v }

func TestCheckTestModeSkipsNetwork(t *testing.T) {
	src := &stubSource{details: AppDetails{Success: true, ComingSoon: boolPtr(false), PriceOverview: &PriceOverview{Final: 100}, PackageGroups: []any{1}}}
	c := New(src, "42", noopLogger())

	for i := 0; i < 3; i++ {
		if got := c.Check(context.Background(), true); got != status.NotAvailable {
			t.Fatalf("test mode should return NotAvailable, got %s", got)
		}
	}
	if src.calls != 0 {
		t.Fatalf("test mode must not touch the source, calls=%d", src.calls)
	}
}

func TestCheckFailsSoftOnError(t *testing.T) {
	c := New(&stubSource{err: errors.New("dial tcp: timeout")}, "42", noopLogger())
	obs := c.Observe(context.Background(), false)
	if obs.Status != status.NotAvailable {
		t.Fatalf("transport error should degrade to NotAvailable, got %s", obs.Status)
	}
	if obs.Err == nil {
		t.Fatal("observation should keep the swallowed error")
	}
}

func TestCheckFailsSoftOnUnsuccessful(t *testing.T) {
	c := New(&stubSource{details: AppDetails{Success: false}}, "42", noopLogger())
	obs := c.Observe(context.Background(), false)
	if obs.Status != status.NotAvailable || !errors.Is(obs.Err, ErrUnsuccessful) {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}

func TestCheckAbsentFieldsAreLessAvailable(t *testing.T) {
	// coming_soon absent reads as true; with packages that is a pre-order.
	c := New(&stubSource{details: AppDetails{Success: true, PackageGroups: []any{"pkg"}}}, "42", noopLogger())
	if got := c.Check(context.Background(), false); got != status.PreorderAvailable {
		t.Fatalf("expected PreorderAvailable, got %s", got)
	}

	c = New(&stubSource{details: AppDetails{Success: true, ComingSoon: boolPtr(false)}}, "42", noopLogger())
	if got := c.Check(context.Background(), false); got != status.NotAvailable {
		t.Fatalf("expected NotAvailable, got %s", got)
	}
}

func TestCheckAvailableKeepsPrice(t *testing.T) {
	src := &stubSource{details: AppDetails{
		Success:       true,
		ComingSoon:    boolPtr(false),
		PriceOverview: &PriceOverview{Currency: "EUR", Final: 59999},
		PackageGroups: []any{"pkg"},
	}}
	obs := New(src, "42", noopLogger()).Observe(context.Background(), false)
	if obs.Status != status.Available {
		t.Fatalf("expected Available, got %s", obs.Status)
	}
	if !obs.Price.Valid || obs.Price.Decimal.StringFixed(2) != "599.99" || obs.Currency != "EUR" {
		t.Fatalf("price not captured: %+v", obs)
	}
}

func TestCheckTimeoutIsNotAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	src := NewSteamSource(SteamOptions{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, noopLogger())
	if got := New(src, "42", noopLogger()).Check(context.Background(), false); got != status.NotAvailable {
		t.Fatalf("timeout should degrade to NotAvailable, got %s", got)
	}
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Fatalf("probe should use HEAD, got %s", r.Method)
		}
	}))
	defer srv.Close()

	if err := NewHTTPProbe(srv.URL, time.Second).Reachable(context.Background()); err != nil {
		t.Fatalf("probe should succeed: %v", err)
	}
	if err := NewHTTPProbe("", time.Second).Reachable(context.Background()); err != nil {
		t.Fatalf("empty probe url should always pass: %v", err)
	}
	if err := NewHTTPProbe("http://127.0.0.1:1", 100*time.Millisecond).Reachable(context.Background()); err == nil {
		t.Fatal("closed port should fail")
	}
}
