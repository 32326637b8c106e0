package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/teslashibe/go-narrator/internal/httpc"
)

// Nominatim reverse geocodes through an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL  string
	language string
	client   *http.Client
	logger   *slog.Logger
}

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// NewNominatim creates a geocoder. A nil client uses a client bounded by
// httpc.GeocodeTimeout.
func NewNominatim(baseURL, language string, client *http.Client, logger *slog.Logger) *Nominatim {
	if client == nil {
		client = httpc.NewClient(httpc.GeocodeTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Nominatim{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		client:   client,
		logger:   logger.With("component", "location.nominatim"),
	}
}

// ReverseGeocode implements Geocoder.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return Place{}, newError(CodeFetchFailed, err)
	}
	req.Header.Set("User-Agent", httpc.UserAgent)
	if n.language != "" {
		req.Header.Set("Accept-Language", n.language)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return Place{}, classify(err, CodeFetchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Place{}, newError(CodeFetchFailed, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var out nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Place{}, newError(CodeFetchFailed, fmt.Errorf("decode: %w", err))
	}
	if out.Error != "" || len(out.Address) == 0 || out.DisplayName == "" {
		n.logger.Debug("no address", "lat", lat, "lon", lon, "error", out.Error)
		return Place{}, ErrNotFound
	}

	return Place{Address: out.DisplayName, Region: region(out.Address)}, nil
}

// region picks the first-level administrative area.
func region(addr map[string]string) string {
	for _, k := range []string{"state", "province", "region", "state_district", "county"} {
		if v := addr[k]; v != "" {
			return v
		}
	}
	return ""
}

var _ Geocoder = (*Nominatim)(nil)
