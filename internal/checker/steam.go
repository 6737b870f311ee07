package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const appDetailsPath = "/api/appdetails"

// SteamOptions parameterise the storefront client.
type SteamOptions struct {
	BaseURL   string
	Country   string
	Language  string
	Timeout   time.Duration
	UserAgent string
}

// SteamSource queries the Steam storefront appdetails endpoint.
type SteamSource struct {
	opts    SteamOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSteamSource constructs a storefront client.
func NewSteamSource(opts SteamOptions, logger zerolog.Logger) *SteamSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://store.steampowered.com"
	}

	return &SteamSource{
		opts:    opts,
		logger:  logger.With().Str("component", "steam_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// AppDetails fetches and decodes the appdetails payload for appID.
func (s *SteamSource) AppDetails(ctx context.Context, appID string) (AppDetails, error) {
	if appID == "" {
		return AppDetails{}, errors.New("app id must be provided")
	}

	query := url.Values{}
	query.Set("appids", appID)
	if s.opts.Country != "" {
		query.Set("cc", s.opts.Country)
	}
	if s.opts.Language != "" {
		query.Set("l", s.opts.Language)
	}

	endpoint := s.baseURL + appDetailsPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AppDetails{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "availwatch/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return AppDetails{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return AppDetails{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AppDetails{}, parseHTTPError(resp.StatusCode, payload)
	}

	s.logger.Debug().Str("app_id", appID).Int("bytes", len(payload)).Msg("appdetails response received")
	return decodeAppDetails(appID, payload)
}

type appEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type appData struct {
	IsFree      *bool `json:"is_free"`
	ReleaseDate *struct {
		ComingSoon *bool  `json:"coming_soon"`
		Date       string `json:"date"`
	} `json:"release_date"`
	PriceOverview *PriceOverview `json:"price_overview"`
	PackageGroups []any          `json:"package_groups"`
}

func decodeAppDetails(appID string, payload []byte) (AppDetails, error) {
	var envelopes map[string]appEnvelope
	if err := json.Unmarshal(payload, &envelopes); err != nil {
		return AppDetails{}, fmt.Errorf("decode appdetails: %w", err)
	}

	envelope, ok := envelopes[appID]
	if !ok {
		return AppDetails{}, fmt.Errorf("appdetails missing entry for %s", appID)
	}
	if !envelope.Success {
		return AppDetails{Success: false}, nil
	}

	var data appData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return AppDetails{}, fmt.Errorf("decode appdetails data: %w", err)
		}
	}

	details := AppDetails{
		Success:       true,
		IsFree:        data.IsFree,
		PriceOverview: data.PriceOverview,
		PackageGroups: data.PackageGroups,
	}
	if data.ReleaseDate != nil {
		details.ComingSoon = data.ReleaseDate.ComingSoon
	}
	return details, nil
}

func parseHTTPError(status int, payload []byte) error {
	body := strings.TrimSpace(string(payload))
	if len(body) > 200 {
		body = body[:200]
	}
	if body != "" {
		return fmt.Errorf("steam api error (%d): %s", status, body)
	}
	return fmt.Errorf("steam api error (%d)", status)
}

var _ Source = (*SteamSource)(nil)
