package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	httpHandler "wallet-service/internal/adapter/http/handler"
	redisStorage "wallet-service/internal/adapter/storage/redis"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/metrics"
	"wallet-service/internal/service"
	"wallet-service/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full application stack on in-memory backends:
// miniredis for the Redis stores, map-based repos behind the repository
// ports, and stub gateway/identity collaborators. This exercises the real
// HTTP layer, middleware, handlers, services, and idempotency guard
// end-to-end.

const testWebhookSecret = "whsec_integration_test"

type testApp struct {
	server  *httptest.Server
	redis   *miniredis.Miniredis
	wallets *inMemoryWalletRepo
	gateway *fakeGateway
}

// fakeIdentityProvider maps any authorization code to a deterministic
// identity, so each distinct code signs in a distinct user.
type fakeIdentityProvider struct{}

func (p *fakeIdentityProvider) AuthURL(state string) string {
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + url.QueryEscape(state)
}

func (p *fakeIdentityProvider) Exchange(ctx context.Context, code string) (*ports.Identity, error) {
	if code == "bad-code" {
		return nil, fmt.Errorf("invalid authorization code")
	}
	return &ports.Identity{
		SubjectID: "google-sub-" + code,
		Email:     code + "@example.com",
		Name:      code,
	}, nil
}

// fakeGateway records initialized checkout sessions and confirms exactly
// the references it has seen.
type fakeGateway struct {
	mu      sync.Mutex
	amounts map[string]int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{amounts: make(map[string]int64)}
}

func (g *fakeGateway) Initialize(ctx context.Context, amount int64, email, reference string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.amounts[reference] = amount
	return "https://checkout.example.com/" + reference, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*ports.GatewayVerification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.amounts[reference]
	if !ok {
		return nil, fmt.Errorf("transaction reference not found")
	}
	return &ports.GatewayVerification{Status: ports.GatewayStatusSuccess, Amount: amount}, nil
}

// testWebhookVerifier mirrors the gateway's HMAC-SHA512 signature scheme.
type testWebhookVerifier struct {
	secret string
}

func (v testWebhookVerifier) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(v.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	log := logger.New("error", false)
	m := metrics.New(prometheus.NewRegistry())

	userRepo := newInMemoryUserRepo()
	walletRepo := newInMemoryWalletRepo()
	txRepo := newInMemoryTransactionRepo()
	keyRepo := newInMemoryAPIKeyRepo()
	idempotencyRepo := newInMemoryIdempotencyRepo()
	auditRepo := newInMemoryAuditRepo()
	transactor := newInMemoryTransactor()

	gateway := newFakeGateway()
	tokenSvc := service.NewJWTTokenService("integration-test-jwt-secret", 24*time.Hour, "wallet-service")
	auditSvc := service.NewAuditService(auditRepo, log)
	guard := service.NewIdempotencyGuard(idempotencyRepo, idempotencyCache, log)

	authSvc := service.NewAuthService(userRepo, walletRepo, &fakeIdentityProvider{}, tokenSvc, auditSvc, log)
	walletSvc := service.NewWalletService(walletRepo, txRepo)
	depositSvc := service.NewDepositService(userRepo, walletRepo, txRepo, guard, gateway, transactor, auditSvc, m, log)
	transferSvc := service.NewTransferService(walletRepo, txRepo, guard, transactor, auditSvc, m, log)
	keySvc := service.NewAPIKeyService(keyRepo, service.NewArgon2KeyHasher(), auditSvc, m, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:         authSvc,
		WalletSvc:       walletSvc,
		DepositSvc:      depositSvc,
		TransferSvc:     transferSvc,
		KeySvc:          keySvc,
		TokenSvc:        tokenSvc,
		WebhookVerifier: testWebhookVerifier{secret: testWebhookSecret},
		Logger:          log,
	})

	return &testApp{
		server:  httptest.NewServer(router),
		redis:   mr,
		wallets: walletRepo,
		gateway: gateway,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// --- Helpers ---

// loginAs signs in via the OAuth callback with code==name and returns the
// session token and the provisioned wallet number.
func loginAs(t *testing.T, app *testApp, name string) (token, walletNumber string) {
	t.Helper()
	resp, err := http.Get(app.server.URL + "/api/v1/auth/google/callback?code=" + url.QueryEscape(name))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]interface{})
	return data["token"].(string), data["wallet_number"].(string)
}

func authedRequest(t *testing.T, app *testApp, method, path, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, app.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getBalance(t *testing.T, app *testApp, token string) int64 {
	t.Helper()
	resp := authedRequest(t, app, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]interface{})
	return int64(data["balance"].(float64))
}

func signWebhook(payload []byte) string {
	mac := hmac.New(sha512.New, []byte(testWebhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func deliverWebhook(t *testing.T, app *testApp, payload []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/webhook/paystack", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-paystack-signature", signWebhook(payload))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// fundWallet initiates a deposit and settles it with a signed success
// webhook, returning the deposit reference.
func fundWallet(t *testing.T, app *testApp, token string, amount int64) string {
	t.Helper()
	body := fmt.Sprintf(`{"amount":%d}`, amount)
	resp := authedRequest(t, app, http.MethodPost, "/api/v1/wallet/deposit", token, []byte(body))
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var initResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&initResp))
	reference := initResp["data"].(map[string]interface{})["reference"].(string)

	payload := fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"status":"success","amount":%d}}`, reference, amount)
	whResp := deliverWebhook(t, app, []byte(payload))
	defer whResp.Body.Close()
	require.Equal(t, http.StatusOK, whResp.StatusCode)

	return reference
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_GoogleSignIn(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token, walletNumber := loginAs(t, app, "alice")
	assert.NotEmpty(t, token)
	assert.Len(t, walletNumber, 13)

	// Signing in again keeps the same wallet
	token2, walletNumber2 := loginAs(t, app, "alice")
	assert.NotEmpty(t, token2)
	assert.Equal(t, walletNumber, walletNumber2)

	// Fresh wallet starts at zero
	assert.Equal(t, int64(0), getBalance(t, app, token))
}

func TestIntegration_GoogleSignIn_BadCode(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/api/v1/auth/google/callback?code=bad-code")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_Unauthenticated(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/api/v1/wallet/balance")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_DepositEndToEnd(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token, _ := loginAs(t, app, "depositor")

	// Initiate
	resp := authedRequest(t, app, http.MethodPost, "/api/v1/wallet/deposit", token, []byte(`{"amount":500000}`))
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var initResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&initResp))
	data := initResp["data"].(map[string]interface{})
	reference := data["reference"].(string)
	assert.Contains(t, data["authorization_url"].(string), reference)

	// Pending until the gateway confirms
	statusResp := authedRequest(t, app, http.MethodGet, "/api/v1/wallet/deposit/"+reference, token, nil)
	var statusBody map[string]interface{}
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&statusBody))
	statusResp.Body.Close()
	assert.Equal(t, "pending", statusBody["data"].(map[string]interface{})["status"])
	assert.Equal(t, int64(0), getBalance(t, app, token))

	// Settle via webhook
	payload := fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"status":"success","amount":500000}}`, reference)
	whResp := deliverWebhook(t, app, []byte(payload))
	whResp.Body.Close()
	require.Equal(t, http.StatusOK, whResp.StatusCode)

	assert.Equal(t, int64(500000), getBalance(t, app, token))

	statusResp = authedRequest(t, app, http.MethodGet, "/api/v1/wallet/deposit/"+reference, token, nil)
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&statusBody))
	statusResp.Body.Close()
	assert.Equal(t, "success", statusBody["data"].(map[string]interface{})["status"])
}

func TestIntegration_WebhookReplayCreditsOnce(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token, _ := loginAs(t, app, "replay-target")
	reference := fundWallet(t, app, token, 250000)
	require.Equal(t, int64(250000), getBalance(t, app, token))

	// The gateway redelivers; the replay is acknowledged without a second credit.
	payload := fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"status":"success","amount":250000}}`, reference)
	resp := deliverWebhook(t, app, []byte(payload))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int64(250000), getBalance(t, app, token))
}

func TestIntegration_WebhookBadSignature(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	payload := []byte(`{"event":"charge.success","data":{"reference":"ref_forged","status":"success","amount":100000}}`)
	req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/webhook/paystack", bytes.NewReader(payload))
	req.Header.Set("x-paystack-signature", "deadbeef")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_WebhookUnknownReference(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	payload := []byte(`{"event":"charge.success","data":{"reference":"ref_never_registered","status":"success","amount":100000}}`)
	resp := deliverWebhook(t, app, payload)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_TransferEndToEnd(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceToken, _ := loginAs(t, app, "alice")
	bobToken, bobWallet := loginAs(t, app, "bob")
	fundWallet(t, app, aliceToken, 1000000)

	body := fmt.Sprintf(`{"wallet_number":%q,"amount":250000,"idempotency_key":"order-2026-001","description":"rent share"}`, bobWallet)
	resp := authedRequest(t, app, http.MethodPost, "/api/v1/wallet/transfer", aliceToken, []byte(body))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var transferResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&transferResp))
	resp.Body.Close()
	data := transferResp["data"].(map[string]interface{})
	assert.Equal(t, "transfer_out", data["type"])
	assert.Equal(t, "success", data["status"])
	reference := data["reference"].(string)

	assert.Equal(t, int64(750000), getBalance(t, app, aliceToken))
	assert.Equal(t, int64(250000), getBalance(t, app, bobToken))

	// Retrying with the same idempotency key replays the original result
	resp = authedRequest(t, app, http.MethodPost, "/api/v1/wallet/transfer", aliceToken, []byte(body))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&transferResp))
	resp.Body.Close()
	assert.Equal(t, reference, transferResp["data"].(map[string]interface{})["reference"])

	assert.Equal(t, int64(750000), getBalance(t, app, aliceToken))
	assert.Equal(t, int64(250000), getBalance(t, app, bobToken))

	// Both sides appear in the recipient's ledger view
	listResp := authedRequest(t, app, http.MethodGet, "/api/v1/wallet/transactions", bobToken, nil)
	var listBody map[string]interface{}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listBody))
	listResp.Body.Close()
	listData := listBody["data"].(map[string]interface{})
	assert.Equal(t, float64(1), listData["total"])
	item := listData["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "transfer_in", item["type"])
	assert.Equal(t, reference, item["reference"])
}

func TestIntegration_Transfer_InsufficientFunds(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceToken, _ := loginAs(t, app, "poor-alice")
	_, bobWallet := loginAs(t, app, "bob")
	fundWallet(t, app, aliceToken, 10000)

	body := fmt.Sprintf(`{"wallet_number":%q,"amount":20000,"idempotency_key":"overdraw-attempt-1"}`, bobWallet)
	resp := authedRequest(t, app, http.MethodPost, "/api/v1/wallet/transfer", aliceToken, []byte(body))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	var errBody map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, "LED_001", errBody["error_code"])

	// Nothing was debited; the claim was released so the key is reusable
	assert.Equal(t, int64(10000), getBalance(t, app, aliceToken))
	body = fmt.Sprintf(`{"wallet_number":%q,"amount":5000,"idempotency_key":"overdraw-attempt-1"}`, bobWallet)
	resp2 := authedRequest(t, app, http.MethodPost, "/api/v1/wallet/transfer", aliceToken, []byte(body))
	resp2.Body.Close()
	assert.Equal(t, http.StatusCreated, resp2.StatusCode)
}

func TestIntegration_Transfer_SelfTransfer(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token, wallet := loginAs(t, app, "narcissus")
	fundWallet(t, app, token, 50000)

	body := fmt.Sprintf(`{"wallet_number":%q,"amount":10000,"idempotency_key":"self-send-1"}`, wallet)
	resp := authedRequest(t, app, http.MethodPost, "/api/v1/wallet/transfer", token, []byte(body))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errBody map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, "LED_004", errBody["error_code"])
}

func TestIntegration_APIKeyLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token, _ := loginAs(t, app, "keyholder")

	// Issue a read+deposit key via the session
	resp := authedRequest(t, app, http.MethodPost, "/api/v1/keys", token,
		[]byte(`{"name":"ci key","permissions":["read","deposit"],"ttl":"1D"}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var createResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&createResp))
	resp.Body.Close()
	createData := createResp["data"].(map[string]interface{})
	plaintext := createData["key"].(string)
	keyID := createData["id"].(string)
	assert.Contains(t, plaintext, "wsk_")

	// The key can read the balance
	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/wallet/balance", nil)
	req.Header.Set("X-API-Key", plaintext)
	keyResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	keyResp.Body.Close()
	assert.Equal(t, http.StatusOK, keyResp.StatusCode)

	// But not transfer: the permission was never granted
	req, _ = http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/wallet/transfer",
		bytes.NewReader([]byte(`{"wallet_number":"1234567890123","amount":10000,"idempotency_key":"key-transfer-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", plaintext)
	keyResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	keyResp.Body.Close()
	assert.Equal(t, http.StatusForbidden, keyResp.StatusCode)

	// Key management is session-only
	req, _ = http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/keys", nil)
	req.Header.Set("X-API-Key", plaintext)
	keyResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	keyResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, keyResp.StatusCode)

	// Revoke, then the key stops working
	revokeResp := authedRequest(t, app, http.MethodDelete, "/api/v1/keys/"+keyID, token, nil)
	revokeResp.Body.Close()
	require.Equal(t, http.StatusOK, revokeResp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/wallet/balance", nil)
	req.Header.Set("X-API-Key", plaintext)
	keyResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer keyResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, keyResp.StatusCode)

	body, _ := io.ReadAll(keyResp.Body)
	assert.Contains(t, string(body), "KEY_003")
}
