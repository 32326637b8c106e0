package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	geo "github.com/kellydunn/golang-geo"
)

type fakeGeocoder struct {
	mu    sync.Mutex
	place Place
	err   error
	delay time.Duration
	calls int
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error) {
	f.mu.Lock()
	f.calls++
	place, err, delay := f.place, f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Place{}, ctx.Err()
		}
	}
	return place, err
}

func (f *fakeGeocoder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingSource struct{ err error }

func (f failingSource) Position(ctx context.Context) (*geo.Point, error) { return nil, f.err }

var springfield = Place{Address: "12 Main Street, Springfield", Region: "Oregon"}

func TestPlace_Text(t *testing.T) {
	if got := springfield.Text(); got != "You are in 12 Main Street, Springfield. State: Oregon." {
		t.Errorf("Text() = %q", got)
	}
	if got := (Place{Address: "Springfield"}).Text(); got != "You are in Springfield." {
		t.Errorf("Text() without region = %q", got)
	}
}

func TestService_Run(t *testing.T) {
	gc := &fakeGeocoder{place: springfield}
	svc := NewService(DefaultConfig(), NewStaticSource(44.0462, -123.0220), gc, nil)

	text, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text != springfield.Text() {
		t.Errorf("text = %q", text)
	}
	if last := svc.Last(); last == nil || last.Place != springfield || last.Cached {
		t.Errorf("Last() = %+v", last)
	}
}

func TestService_ReuseRadius(t *testing.T) {
	gc := &fakeGeocoder{place: springfield}
	src := NewStaticSource(45.0, -122.0)
	svc := NewService(DefaultConfig(), src, gc, nil)
	ctx := context.Background()

	if _, err := svc.Locate(ctx); err != nil {
		t.Fatal(err)
	}

	// About 11 m north: reuse.
	src.Set(45.0001, -122.0)
	r, err := svc.Locate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Cached || gc.Calls() != 1 {
		t.Errorf("cached=%v calls=%d, want reuse", r.Cached, gc.Calls())
	}

	// About 111 m north: new lookup.
	src.Set(45.001, -122.0)
	r, err = svc.Locate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Cached || gc.Calls() != 2 {
		t.Errorf("cached=%v calls=%d, want fresh lookup", r.Cached, gc.Calls())
	}
}

func TestService_Errors(t *testing.T) {
	tests := []struct {
		name      string
		positions PositionSource
		geocoder  Geocoder
		wantCode  Code
		wantText  string
	}{
		{
			name:      "no address",
			positions: NewStaticSource(0, 0),
			geocoder:  &fakeGeocoder{err: ErrNotFound},
			wantCode:  CodeNotFound,
			wantText:  "Location not found",
		},
		{
			name:      "empty address",
			positions: NewStaticSource(0, 0),
			geocoder:  &fakeGeocoder{},
			wantCode:  CodeNotFound,
			wantText:  "Location not found",
		},
		{
			name:      "geocoder down",
			positions: NewStaticSource(0, 0),
			geocoder:  &fakeGeocoder{err: errors.New("connection refused")},
			wantCode:  CodeFetchFailed,
			wantText:  "Error fetching location data",
		},
		{
			name:      "permission denied",
			positions: failingSource{newError(CodePermissionDenied, nil)},
			geocoder:  &fakeGeocoder{place: springfield},
			wantCode:  CodePermissionDenied,
			wantText:  "User denied the request for Geolocation.",
		},
		{
			name:      "no fix",
			positions: failingSource{errors.New("gps unplugged")},
			geocoder:  &fakeGeocoder{place: springfield},
			wantCode:  CodePositionUnavailable,
			wantText:  "Location information is unavailable.",
		},
		{
			name:      "position unset",
			positions: &StaticSource{},
			geocoder:  &fakeGeocoder{place: springfield},
			wantCode:  CodePositionUnavailable,
			wantText:  "Location information is unavailable.",
		},
		{
			name:      "unsupported",
			positions: nil,
			geocoder:  &fakeGeocoder{place: springfield},
			wantCode:  CodeUnsupported,
			wantText:  "Geolocation is not supported on this device.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(DefaultConfig(), tc.positions, tc.geocoder, nil)
			text, err := svc.Run(context.Background())
			if CodeOf(err) != tc.wantCode {
				t.Errorf("code = %q (err %v), want %q", CodeOf(err), err, tc.wantCode)
			}
			if text != tc.wantText {
				t.Errorf("text = %q, want %q", text, tc.wantText)
			}
		})
	}
}

func TestService_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	svc := NewService(cfg, NewStaticSource(1, 1), &fakeGeocoder{place: springfield, delay: time.Second}, nil)

	text, err := svc.Run(context.Background())
	if CodeOf(err) != CodeTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if text != "The request to get user location timed out." {
		t.Errorf("text = %q", text)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, ""},
		{ErrNotFound, CodeNotFound},
		{fmt.Errorf("wrapped: %w", newError(CodeTimeout, nil)), CodeTimeout},
		{context.DeadlineExceeded, CodeTimeout},
		{errors.New("boom"), CodeUnknown},
	}
	for _, tc := range tests {
		if got := CodeOf(tc.err); got != tc.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if got := Code("bogus").Message(); got != "An unknown error occurred." {
		t.Errorf("unknown code message = %q", got)
	}
	wrapped := newError(CodeFetchFailed, context.Canceled)
	if !errors.Is(wrapped, context.Canceled) {
		t.Error("Error should unwrap")
	}
}

func TestNominatim(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA, gotQuery = r.Header.Get("User-Agent"), r.URL.RawQuery
		if r.URL.Path != "/reverse" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"display_name":"12 Main Street, Springfield, Lane County, Oregon, 97477, United States",
			"address":{"road":"Main Street","city":"Springfield","county":"Lane County","state":"Oregon"}}`)
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL+"/", "en", srv.Client(), nil)
	place, err := n.ReverseGeocode(context.Background(), 44.0462, -123.022)
	if err != nil {
		t.Fatal(err)
	}
	want := Place{
		Address: "12 Main Street, Springfield, Lane County, Oregon, 97477, United States",
		Region:  "Oregon",
	}
	if diff := cmp.Diff(want, place); diff != "" {
		t.Errorf("place mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(gotUA, "go-narrator/") {
		t.Errorf("User-Agent = %q", gotUA)
	}
	for _, part := range []string{"format=json", "lat=44.046200", "lon=-123.022000"} {
		if !strings.Contains(gotQuery, part) {
			t.Errorf("query %q missing %q", gotQuery, part)
		}
	}
}

func TestNominatim_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode Code
	}{
		{"unable to geocode", 200, `{"error":"Unable to geocode"}`, CodeNotFound},
		{"no address block", 200, `{"display_name":"Atlantic Ocean"}`, CodeNotFound},
		{"server error", 503, `busy`, CodeFetchFailed},
		{"bad json", 200, `<html>`, CodeFetchFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewNominatim(srv.URL, "", srv.Client(), nil).ReverseGeocode(context.Background(), 0, 0)
			if CodeOf(err) != tc.wantCode {
				t.Errorf("code = %q (err %v), want %q", CodeOf(err), err, tc.wantCode)
			}
		})
	}
}

type fakeGeoLib struct {
	addr string
	err  error
	got  *geo.Point
}

func (f *fakeGeoLib) Geocode(query string) (*geo.Point, error) { return nil, errors.New("unused") }

func (f *fakeGeoLib) ReverseGeocode(p *geo.Point) (string, error) {
	f.got = p
	return f.addr, f.err
}

func TestGeoGeocoder(t *testing.T) {
	lib := &fakeGeoLib{addr: " 1600 Amphitheatre Pkwy, Mountain View, CA "}
	g := NewGeoGeocoder("google", lib)

	place, err := g.ReverseGeocode(context.Background(), 37.422, -122.084)
	if err != nil {
		t.Fatal(err)
	}
	if place.Address != "1600 Amphitheatre Pkwy, Mountain View, CA" || place.Region != "" {
		t.Errorf("place = %+v", place)
	}
	if lib.got.Lat() != 37.422 || lib.got.Lng() != -122.084 {
		t.Errorf("point = %v", lib.got)
	}

	lib.addr, lib.err = "", errors.New("ZERO_RESULTS")
	if _, err := g.ReverseGeocode(context.Background(), 0, 0); CodeOf(err) != CodeNotFound {
		t.Errorf("zero results code = %q", CodeOf(err))
	}

	lib.err = errors.New("OVER_QUERY_LIMIT")
	if _, err := g.ReverseGeocode(context.Background(), 0, 0); CodeOf(err) != CodeFetchFailed {
		t.Errorf("quota code = %q", CodeOf(err))
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// nmeaSentence frames body with the NMEA checksum.
func nmeaSentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func newTestNMEA(t *testing.T) (*NMEASource, *clock.Mock) {
	t.Helper()
	cfg := DefaultConfig().NMEA
	n := NewNMEASource(cfg, nil)
	clk := clock.NewMock()
	n.SetClock(clk)
	return n, clk
}

func TestNMEA_Sentences(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLat float64
		wantLon float64
		wantFix bool
	}{
		{"gll", "GPGLL,4503.000,N,12200.000,W,120000,A,A", 45.05, -122.0, true},
		{"rmc", "GPRMC,120000,A,4503.000,N,12200.000,W,0.0,0.0,010124,,,A", 45.05, -122.0, true},
		{"gga", "GPGGA,120000,4503.000,N,12200.000,W,1,08,0.9,100.0,M,46.9,M,,", 45.05, -122.0, true},
		{"gll void", "GPGLL,4503.000,N,12200.000,W,120000,V,A", 0, 0, false},
		{"rmc void", "GPRMC,120000,V,4503.000,N,12200.000,W,0.0,0.0,010124,,,A", 0, 0, false},
		{"gga no fix", "GPGGA,120000,4503.000,N,12200.000,W,0,00,99.9,,M,,M,,", 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, _ := newTestNMEA(t)
			if err := n.Update(nmeaSentence(tc.body)); err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			p, err := n.Position(ctx)
			if !tc.wantFix {
				if CodeOf(err) != CodePositionUnavailable {
					t.Errorf("err = %v, want position unavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			got := []float64{p.Lat(), p.Lng()}
			if diff := cmp.Diff([]float64{tc.wantLat, tc.wantLon}, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("position mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNMEA_BadInput(t *testing.T) {
	n, _ := newTestNMEA(t)
	if err := n.Update("$GPGLL,garbage*00"); err == nil {
		t.Error("expected parse error")
	}
	if err := n.Update(nmeaSentence("GPZDA,120000.00,01,01,2024,00,00")); err != nil {
		t.Errorf("unsupported sentences should be ignored, got %v", err)
	}
	if err := n.Update("   "); err != nil {
		t.Errorf("blank line: %v", err)
	}
}

func TestNMEA_WaitsForFix(t *testing.T) {
	n, _ := newTestNMEA(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = n.Update(nmeaSentence("GPGLL,4503.000,N,12200.000,W,120000,A,A"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := n.Position(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !near(p.Lat(), 45.05) {
		t.Errorf("lat = %v", p.Lat())
	}
}

func TestNMEA_SilentDeviceTimesOut(t *testing.T) {
	n, _ := newTestNMEA(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := n.Position(ctx); CodeOf(err) != CodeTimeout {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestNMEA_StaleFix(t *testing.T) {
	n, clk := newTestNMEA(t)
	_ = n.Update(nmeaSentence("GPGLL,4503.000,N,12200.000,W,120000,A,A"))

	clk.Add(31 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := n.Position(ctx); CodeOf(err) != CodePositionUnavailable {
		t.Errorf("err = %v, want position unavailable for a stale fix", err)
	}
}

func TestNMEA_ReadFromEOF(t *testing.T) {
	n, _ := newTestNMEA(t)
	stream := strings.Join([]string{
		nmeaSentence("GPZDA,120000.00,01,01,2024,00,00"),
		nmeaSentence("GPRMC,120000,A,4503.000,N,12200.000,W,0.0,0.0,010124,,,A"),
	}, "\r\n")

	err := n.ReadFrom(context.Background(), strings.NewReader(stream))
	if err == nil {
		t.Fatal("EOF should be reported")
	}

	// The fix read before EOF is still served.
	p, perr := n.Position(context.Background())
	if perr != nil || !near(p.Lat(), 45.05) {
		t.Errorf("Position = %v, %v", p, perr)
	}
}

func TestNMEA_DeviceMissing(t *testing.T) {
	cfg := DefaultConfig().NMEA
	cfg.Device = t.TempDir() + "/missing"
	n := NewNMEASource(cfg, nil)
	if err := n.Run(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
	if _, err := n.Position(context.Background()); CodeOf(err) != CodePositionUnavailable {
		t.Errorf("err = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"opencage without key", func(c *Config) { c.Geocoder = GeocoderOpenCage }, true},
		{"google with key", func(c *Config) { c.Geocoder = GeocoderGoogle; c.APIKey = "k" }, false},
		{"unknown geocoder", func(c *Config) { c.Geocoder = "bing" }, true},
		{"static in range", func(c *Config) {
			c.Position = PositionStatic
			c.Static = StaticConfig{Latitude: -33.86, Longitude: 151.2}
		}, false},
		{"static out of range", func(c *Config) {
			c.Position = PositionStatic
			c.Static = StaticConfig{Latitude: 91}
		}, true},
		{"nmea without device", func(c *Config) { c.Position = PositionNMEA; c.NMEA.Device = "" }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"negative radius", func(c *Config) { c.ReuseRadius = -1 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestFactories(t *testing.T) {
	cfg := DefaultConfig()
	gc, err := NewGeocoder(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := gc.(*Nominatim); !ok {
		t.Errorf("geocoder = %T", gc)
	}

	cfg.Geocoder = GeocoderNone
	if gc, _ := NewGeocoder(cfg, nil, nil); gc != nil {
		t.Errorf("none geocoder = %T", gc)
	}

	cfg.Position = PositionNMEA
	ps, err := NewPositionSource(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ps.(*NMEASource); !ok {
		t.Errorf("position source = %T", ps)
	}
}
