package routes

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"arbitrationd/core/events"
	"arbitrationd/core/hash"
	"arbitrationd/crypto"
	"arbitrationd/native/treasury"
)

func newTestEngine() *treasury.Engine {
	return &treasury.Engine{
		Store:   treasury.NewMemoryStore(),
		Emitter: events.NoopEmitter{},
	}
}

func newTestHandler(t *testing.T, engine *treasury.Engine) http.Handler {
	t.Helper()
	h, err := New(Config{Engine: engine})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return h
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t, newTestEngine())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestInitializeSafePolicy_RejectsMalformedAddress(t *testing.T) {
	handler := newTestHandler(t, newTestEngine())
	rec := doJSON(t, handler, http.MethodPost, "/v1/policies/initialize", map[string]interface{}{
		"policy_address": "not-a-bech32-address",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed address, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInitializeSafePolicy_RejectsFloorViolation(t *testing.T) {
	handler := newTestHandler(t, newTestEngine())
	authority, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	policyAddr, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/v1/policies/initialize", map[string]interface{}{
		"policy_address":      policyAddr.PubKey().Address().String(),
		"authority":           authority.PubKey().Address().String(),
		"resolver":            authority.PubKey().Address().String(),
		"dispute_window_secs": 1, // below treasury.MinDisputeWindowSecs
		"challenge_bond":      treasury.MinChallengeBond,
		"eligibility_mint":    authority.PubKey().Address().String(),
		"max_appeal_rounds":   treasury.MinAppealRounds,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a policy floor violation, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestPayoutLifecycle_QueueCancel exercises the full HTTP surface for
// initializing a policy, then queuing and cancelling a payout against it
// with a direct-mode authorization signature.
func TestPayoutLifecycle_QueueCancel(t *testing.T) {
	engine := newTestEngine()
	handler := newTestHandler(t, engine)

	authorityKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	authority := authorityKey.PubKey().Address()
	resolver, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate resolver key: %v", err)
	}
	mint, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate mint key: %v", err)
	}
	policyKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate policy key: %v", err)
	}
	policyAddr := policyKey.PubKey().Address()
	recipientKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}
	recipient := recipientKey.PubKey().Address()
	safeKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate safe key: %v", err)
	}
	safe := safeKey.PubKey().Address()

	initRec := doJSON(t, handler, http.MethodPost, "/v1/policies/initialize", map[string]interface{}{
		"policy_address":      policyAddr.String(),
		"authority":           authority.String(),
		"resolver":            resolver.PubKey().Address().String(),
		"dispute_window_secs": treasury.MinDisputeWindowSecs,
		"challenge_bond":      treasury.MinChallengeBond,
		"eligibility_mint":    mint.PubKey().Address().String(),
		"max_appeal_rounds":   treasury.MinAppealRounds,
		"payout_cancellation_allowed": true,
	})
	if initRec.Code != http.StatusOK {
		t.Fatalf("expected policy init to succeed, got %d: %s", initRec.Code, initRec.Body.String())
	}

	// The gateway recomputes the queue payload hash from the request's own
	// fields, so the direct-mode signature must be produced over that same
	// digest rather than an arbitrary one.
	var policyArr, recipArr [20]byte
	copy(policyArr[:], policyAddr.Bytes())
	copy(recipArr[:], recipient.Bytes())
	digest := hash.QueuePayloadHash(policyArr, recipArr, byte(treasury.AssetTypeNative), 1000, nil, nil)
	sig, err := authorityKey.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	queueRec := doJSON(t, handler, http.MethodPost, "/v1/payouts/queue", map[string]interface{}{
		"policy_address":     policyAddr.String(),
		"safe":               safe.String(),
		"asset_type":         uint8(treasury.AssetTypeNative),
		"recipient":          recipient.String(),
		"amount":             1000,
		"authorization_mode": uint8(treasury.AuthModeDirect),
		"signature":          "0x" + hex.EncodeToString(sig),
	})
	if queueRec.Code != http.StatusOK {
		t.Fatalf("expected queue_payout to succeed, got %d: %s", queueRec.Code, queueRec.Body.String())
	}
	var payout treasury.Payout
	if err := json.Unmarshal(queueRec.Body.Bytes(), &payout); err != nil {
		t.Fatalf("decode payout response: %v", err)
	}
	if payout.Status != treasury.PayoutStatusQueued {
		t.Fatalf("expected payout to be queued, got status %d", payout.Status)
	}

	cancelRec := doJSON(t, handler, http.MethodPost, "/v1/payouts/cancel", map[string]interface{}{
		"policy_address": policyAddr.String(),
		"caller":         authority.String(),
		"payout_id":      payout.PayoutID,
	})
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("expected cancel_payout to succeed, got %d: %s", cancelRec.Code, cancelRec.Body.String())
	}

	// A second cancellation attempt hits the already-cancelled state and
	// maps to a 409 through domainErrorStatus.
	secondCancel := doJSON(t, handler, http.MethodPost, "/v1/payouts/cancel", map[string]interface{}{
		"policy_address": policyAddr.String(),
		"caller":         authority.String(),
		"payout_id":      payout.PayoutID,
	})
	if secondCancel.Code != http.StatusConflict {
		t.Fatalf("expected second cancel to conflict, got %d: %s", secondCancel.Code, secondCancel.Body.String())
	}
}
