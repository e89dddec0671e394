package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/coupon-dispenser/internal/catalog"
	"github.com/fairyhunter13/coupon-dispenser/internal/ledger"
	"github.com/fairyhunter13/coupon-dispenser/internal/model"
	"github.com/fairyhunter13/coupon-dispenser/internal/service"
)

// mockClaimService is a mock implementation of ClaimServiceInterface.
type mockClaimService struct {
	claimFn       func(ctx context.Context, ip, trackerID string) (service.ClaimResult, error)
	eligibilityFn func(ctx context.Context, ip, trackerID string) service.EligibilityResult
}

func (m *mockClaimService) Claim(ctx context.Context, ip, trackerID string) (service.ClaimResult, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, ip, trackerID)
	}
	return service.ClaimResult{}, nil
}

func (m *mockClaimService) Eligibility(ctx context.Context, ip, trackerID string) service.EligibilityResult {
	if m.eligibilityFn != nil {
		return m.eligibilityFn(ctx, ip, trackerID)
	}
	return service.EligibilityResult{}
}

var testCookie = CookieOptions{MaxAge: time.Hour, SameSite: "Lax"}

func setupClaimTestApp(svc ClaimServiceInterface) *fiber.App {
	app := fiber.New()
	h := NewClaimHandler(svc, testCookie)
	app.Post("/claim", h.ClaimCoupon)
	app.Get("/eligibility", h.CheckEligibility)
	return app
}

func newClaimRequest(ip string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/claim", nil)
	req.Header.Set("X-Forwarded-For", ip)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func trackerCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == TrackerCookieName {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestClaimCoupon_Success(t *testing.T) {
	var gotIP, gotTracker string
	mockSvc := &mockClaimService{
		claimFn: func(ctx context.Context, ip, trackerID string) (service.ClaimResult, error) {
			gotIP, gotTracker = ip, trackerID
			return service.ClaimResult{
				Coupon:    &model.Coupon{ID: "1", Code: "SAVE20", Discount: 20},
				TrackerID: trackerID,
			}, nil
		},
	}
	app := setupClaimTestApp(mockSvc)

	resp, err := app.Test(newClaimRequest("203.0.113.7", &http.Cookie{Name: TrackerCookieName, Value: "abc"}))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "Expected 200 OK")
	assert.Equal(t, "203.0.113.7", gotIP)
	assert.Equal(t, "abc", gotTracker)
	assert.Nil(t, trackerCookie(resp), "existing tracker must not be re-issued")

	var body model.ClaimResponse
	decodeBody(t, resp, &body)
	require.NotNil(t, body.ClaimedCoupon)
	assert.Equal(t, "SAVE20", body.ClaimedCoupon.Code)
}

func TestClaimCoupon_IssuesTrackerCookie(t *testing.T) {
	mockSvc := &mockClaimService{
		claimFn: func(ctx context.Context, ip, trackerID string) (service.ClaimResult, error) {
			return service.ClaimResult{
				Coupon:        &model.Coupon{Code: "SAVE20"},
				TrackerID:     "fresh-id",
				TrackerIssued: true,
			}, nil
		},
	}
	app := setupClaimTestApp(mockSvc)

	resp, err := app.Test(newClaimRequest("203.0.113.7", nil))
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	c := trackerCookie(resp)
	require.NotNil(t, c)
	assert.Equal(t, "fresh-id", c.Value)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
}

func TestClaimCoupon_RateLimited(t *testing.T) {
	mockSvc := &mockClaimService{
		claimFn: func(ctx context.Context, ip, trackerID string) (service.ClaimResult, error) {
			return service.ClaimResult{TrackerID: "fresh-id", TrackerIssued: true},
				&service.RateLimitedError{Remaining: 1799, Axis: ledger.AxisIP}
		},
	}
	app := setupClaimTestApp(mockSvc)

	resp, err := app.Test(newClaimRequest("203.0.113.7", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode, "Expected 429 Too Many Requests")
	assert.Equal(t, "1799", resp.Header.Get("Retry-After"))
	require.NotNil(t, trackerCookie(resp), "cookie is issued even when the claim is refused")

	var result map[string]string
	decodeBody(t, resp, &result)
	assert.Equal(t, "Not eligible to claim a coupon yet. Try again in 1799 seconds.", result["error"])
}

func TestClaimCoupon_NoCouponsAvailable(t *testing.T) {
	mockSvc := &mockClaimService{
		claimFn: func(ctx context.Context, ip, trackerID string) (service.ClaimResult, error) {
			return service.ClaimResult{TrackerID: "fresh-id", TrackerIssued: true}, service.ErrNoCouponsAvailable
		},
	}
	app := setupClaimTestApp(mockSvc)

	resp, err := app.Test(newClaimRequest("203.0.113.7", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "Expected 404 Not Found")
	assert.NotNil(t, trackerCookie(resp))

	var result map[string]string
	decodeBody(t, resp, &result)
	assert.Equal(t, "No coupons available.", result["error"])
}

func TestClaimCoupon_InternalError(t *testing.T) {
	mockSvc := &mockClaimService{
		claimFn: func(ctx context.Context, ip, trackerID string) (service.ClaimResult, error) {
			return service.ClaimResult{}, errors.New("unexpected")
		},
	}
	app := setupClaimTestApp(mockSvc)

	resp, err := app.Test(newClaimRequest("203.0.113.7", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode, "Expected 500 Internal Server Error")

	var result map[string]string
	decodeBody(t, resp, &result)
	assert.Equal(t, "internal server error", result["error"])
}

func TestCheckEligibility_Response(t *testing.T) {
	next := &model.Coupon{ID: "2", Code: "FREESHIP"}
	var gotTracker string
	mockSvc := &mockClaimService{
		eligibilityFn: func(ctx context.Context, ip, trackerID string) service.EligibilityResult {
			gotTracker = trackerID
			return service.EligibilityResult{
				Eligibility: service.Eligibility{Eligible: false, Remaining: 42, Axis: ledger.AxisCookie},
				NextCoupon:  next,
			}
		},
	}
	app := setupClaimTestApp(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/eligibility", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.AddCookie(&http.Cookie{Name: TrackerCookieName, Value: "abc"})
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", gotTracker)
	assert.Nil(t, trackerCookie(resp), "eligibility never sets a cookie")

	var raw map[string]any
	decodeBody(t, resp, &raw)
	assert.Equal(t, false, raw["eligible"])
	assert.EqualValues(t, 42, raw["remaining"])
	assert.Contains(t, raw, "claimedCoupon")
	assert.Nil(t, raw["claimedCoupon"])
	assert.Equal(t, "FREESHIP", raw["nextCoupon"].(map[string]any)["code"])
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupDispenserApp(cat *catalog.Catalog) (*fiber.App, *clock) {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	n := 0
	claims := ledger.New(service.DefaultCooldown)
	d := service.NewDispenser(cat, claims,
		service.WithClock(clk.Now),
		service.WithTrackerIDFunc(func() string {
			n++
			return fmt.Sprintf("tracker-%d", n)
		}),
	)

	app := fiber.New()
	ch := NewClaimHandler(d, CookieOptions{MaxAge: claims.Cooldown(), SameSite: "Lax"})
	app.Get("/coupons", NewCouponHandler(d).ListCoupons)
	app.Get("/eligibility", ch.CheckEligibility)
	app.Post("/claim", ch.ClaimCoupon)
	return app, clk
}

func claim(t *testing.T, app *fiber.App, ip string, cookie *http.Cookie) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(newClaimRequest(ip, cookie))
	require.NoError(t, err)
	var body map[string]any
	decodeBody(t, resp, &body)
	return resp, body
}

func claimedCode(t *testing.T, body map[string]any) string {
	t.Helper()
	coupon, ok := body["claimedCoupon"].(map[string]any)
	require.True(t, ok, "response has no claimedCoupon: %v", body)
	return coupon["code"].(string)
}

func TestClaimFlow_CookieRoundTrip(t *testing.T) {
	app, _ := setupDispenserApp(catalog.Default(time.Now()))

	resp, body := claim(t, app, "198.51.100.1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "SAVE20", claimedCode(t, body))

	cookie := trackerCookie(resp)
	require.NotNil(t, cookie)
	assert.Equal(t, "tracker-1", cookie.Value)
	assert.Equal(t, 3600, cookie.MaxAge)

	// Same IP with the issued cookie is refused and no new cookie is issued.
	resp, body = claim(t, app, "198.51.100.1", &http.Cookie{Name: cookie.Name, Value: cookie.Value})
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Nil(t, trackerCookie(resp))
	assert.Equal(t, "Not eligible to claim a coupon yet. Try again in 3600 seconds.", body["error"])

	// A new IP carrying the same cookie is still refused.
	resp, _ = claim(t, app, "198.51.100.2", &http.Cookie{Name: cookie.Name, Value: cookie.Value})
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestClaimFlow_RemainingDecreasesThenExpires(t *testing.T) {
	app, clk := setupDispenserApp(catalog.Default(time.Now()))

	resp, _ := claim(t, app, "198.51.100.1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cookie := trackerCookie(resp)
	require.NotNil(t, cookie)
	replay := &http.Cookie{Name: cookie.Name, Value: cookie.Value}

	last := 3601
	for i := 0; i < 5; i++ {
		clk.Advance(10 * time.Minute)
		resp, _ := claim(t, app, "198.51.100.1", replay)
		require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

		var remaining int
		_, err := fmt.Sscan(resp.Header.Get("Retry-After"), &remaining)
		require.NoError(t, err)
		assert.Less(t, remaining, last)
		last = remaining
	}
	assert.Equal(t, 600, last)

	clk.Advance(10 * time.Minute)
	resp, body := claim(t, app, "198.51.100.1", replay)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "FREESHIP", claimedCode(t, body))
}

func TestClaimFlow_Scenario(t *testing.T) {
	app, clk := setupDispenserApp(catalog.Default(time.Now()))

	// Client A claims the first coupon.
	resp, body := claim(t, app, "10.0.0.1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "SAVE20", claimedCode(t, body))
	cookieA := trackerCookie(resp)
	require.NotNil(t, cookieA)

	// Client B gets the next one.
	resp, body = claim(t, app, "10.0.0.2", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "FREESHIP", claimedCode(t, body))

	// Client A retries 30 minutes later.
	clk.Advance(30 * time.Minute)
	resp, body = claim(t, app, "10.0.0.1", &http.Cookie{Name: cookieA.Name, Value: cookieA.Value})
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Not eligible to claim a coupon yet. Try again in 1800 seconds.", body["error"])

	// After the window client A is served the third coupon.
	clk.Advance(31 * time.Minute)
	resp, body = claim(t, app, "10.0.0.1", &http.Cookie{Name: cookieA.Name, Value: cookieA.Value})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "SUMMER25", claimedCode(t, body))
}

func TestClaimFlow_EligibilityTracksClaims(t *testing.T) {
	app, _ := setupDispenserApp(catalog.Default(time.Now()))

	check := func() model.EligibilityResponse {
		req := httptest.NewRequest(http.MethodGet, "/eligibility", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.9")
		resp, err := app.Test(req)
		require.NoError(t, err)
		var out model.EligibilityResponse
		decodeBody(t, resp, &out)
		return out
	}

	before := check()
	assert.True(t, before.Eligible)
	assert.Zero(t, before.Remaining)
	require.NotNil(t, before.NextCoupon)
	assert.Equal(t, "SAVE20", before.NextCoupon.Code)

	resp, _ := claim(t, app, "10.0.0.9", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	after := check()
	assert.False(t, after.Eligible)
	assert.Equal(t, 3600, after.Remaining)
	assert.Nil(t, after.ClaimedCoupon)
	require.NotNil(t, after.NextCoupon)
	assert.Equal(t, "FREESHIP", after.NextCoupon.Code)
}

func TestClaimFlow_EmptyCatalog(t *testing.T) {
	app, _ := setupDispenserApp(catalog.New(nil))

	for i := 0; i < 2; i++ {
		resp, body := claim(t, app, fmt.Sprintf("10.0.1.%d", i), nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "No coupons available.", body["error"])
		assert.NotNil(t, trackerCookie(resp))
	}

	req := httptest.NewRequest(http.MethodGet, "/coupons", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	var coupons []model.Coupon
	decodeBody(t, resp, &coupons)
	assert.Empty(t, coupons)
}

// serve runs app on a loopback listener and returns its base URL together with
// a client that keeps a single connection alive across requests.
func serve(t *testing.T, app *fiber.App) (string, *http.Client) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = app.Listener(ln)
	}()

	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			MaxConnsPerHost:     1,
			MaxIdleConnsPerHost: 1,
		},
	}
	t.Cleanup(func() {
		client.CloseIdleConnections()
		_ = app.Shutdown()
	})
	return "http://" + ln.Addr().String(), client
}

func TestClaimFlow_KeepAliveConnection(t *testing.T) {
	app, _ := setupDispenserApp(catalog.Default(time.Now()))
	base, client := serve(t, app)

	post := func(ip, tracker string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, base+"/claim", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", ip)
		req.AddCookie(&http.Cookie{Name: TrackerCookieName, Value: tracker})

		resp, err := client.Do(req)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, post("10.0.0.1", "aaaaaaaa"))
	for i := 2; i <= 5; i++ {
		require.Equal(t, fiber.StatusOK, post(fmt.Sprintf("10.0.0.%d", i), fmt.Sprintf("bbbbbbb%d", i)))
	}

	// Earlier identities survive later requests on the same connection.
	assert.Equal(t, fiber.StatusTooManyRequests, post("10.0.0.99", "aaaaaaaa"))
	assert.Equal(t, fiber.StatusTooManyRequests, post("10.0.0.1", "cccccccc"))
	assert.Equal(t, fiber.StatusTooManyRequests, post("10.0.0.98", "bbbbbbb3"))

	// A client that never claimed is still served.
	assert.Equal(t, fiber.StatusOK, post("10.0.0.100", "dddddddd"))
}
