package ecobee_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/thermopoll/internal/ecobee"
	"codeberg.org/mutker/thermopoll/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vendorStub struct {
	srv            *httptest.Server
	authorizeCalls atomic.Int32
	refreshCalls   atomic.Int32
	exchangeCalls  atomic.Int32
	refreshStatus  int
	issued         atomic.Int32
}

func newVendorStub(t *testing.T) *vendorStub {
	t.Helper()

	v := &vendorStub{refreshStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		v.authorizeCalls.Add(1)
		assert.Equal(t, "ecobeePin", r.URL.Query().Get("response_type"))
		json.NewEncoder(w).Encode(map[string]string{"ecobeePin": "ABCD-1234", "code": "devcode"})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostFormValue("grant_type") {
		case "refresh_token":
			v.refreshCalls.Add(1)
			if v.refreshStatus != http.StatusOK {
				w.WriteHeader(v.refreshStatus)
				return
			}
		case "ecobeePin":
			v.exchangeCalls.Add(1)
			assert.Equal(t, "devcode", r.PostFormValue("code"))
		}
		n := v.issued.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("access-%d", n),
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": fmt.Sprintf("refresh-%d", n),
			"scope":         "smartRead",
		})
	})
	v.srv = httptest.NewServer(mux)
	t.Cleanup(v.srv.Close)

	return v
}

func newTestManager(t *testing.T, v *vendorStub, opts ...ecobee.ManagerOption) (*ecobee.Manager, *ecobee.FileStore) {
	t.Helper()

	store := ecobee.NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	httpc := transport.NewClient(
		transport.WithAttempts(1),
		transport.WithBaseDelay(time.Millisecond),
		transport.WithMaxJitter(time.Millisecond),
	)

	opts = append([]ecobee.ManagerOption{ecobee.WithBaseURL(v.srv.URL)}, opts...)
	return ecobee.NewManager("api-key", store, httpc, opts...), store
}

func TestTokenAcquiresViaDeviceFlow(t *testing.T) {
	v := newVendorStub(t)

	var confirmedPin string
	manager, store := newTestManager(t, v, ecobee.WithConfirmFunc(func(pin string) error {
		confirmedPin = pin
		return nil
	}))

	token, err := manager.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ABCD-1234", confirmedPin, "the PIN must be surfaced to the human")
	assert.Equal(t, "access-1", token.AccessToken)
	assert.True(t, token.Valid(time.Now()), "expiry must be in the future after acquisition")
	assert.Equal(t, int32(1), v.authorizeCalls.Load())
	assert.Equal(t, int32(1), v.exchangeCalls.Load())

	persisted, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, persisted, "token must be persisted before being returned")
	assert.Equal(t, token.AccessToken, persisted.AccessToken)
}

func TestTokenAbandonedAuthorization(t *testing.T) {
	v := newVendorStub(t)

	manager, store := newTestManager(t, v, ecobee.WithConfirmFunc(func(string) error {
		return context.Canceled
	}))

	_, err := manager.Token(context.Background())
	require.Error(t, err)
	assert.True(t, ecobee.IsAuthError(err))

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, persisted, "no token may be persisted for an abandoned authorization")
}

func TestTokenSkipsInteractionWithStoredToken(t *testing.T) {
	v := newVendorStub(t)
	manager, store := newTestManager(t, v, ecobee.WithConfirmFunc(func(string) error {
		t.Fatal("confirmation must not run when a persisted token exists")
		return nil
	}))

	require.NoError(t, store.Save(&ecobee.Token{
		AccessToken:  "stored",
		RefreshToken: "stored-refresh",
		Expiry:       time.Now().Add(time.Hour).Unix(),
	}))

	token, err := manager.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "stored", token.AccessToken)
	assert.Zero(t, v.authorizeCalls.Load())
	assert.Zero(t, v.refreshCalls.Load(), "a valid token triggers zero refresh calls")
}

func TestTokenRefreshesExpired(t *testing.T) {
	v := newVendorStub(t)
	manager, store := newTestManager(t, v)

	require.NoError(t, store.Save(&ecobee.Token{
		AccessToken:  "stale",
		RefreshToken: "stale-refresh",
		Expiry:       time.Now().Add(-time.Minute).Unix(),
	}))

	token, err := manager.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), v.refreshCalls.Load(), "an expired token causes exactly one refresh")
	assert.Equal(t, "access-1", token.AccessToken)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-1", persisted.AccessToken, "the refreshed token must be persisted")

	// The refreshed token is reused without further refreshes.
	_, err = manager.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.refreshCalls.Load())
}

func TestTokenRefreshDenied(t *testing.T) {
	v := newVendorStub(t)
	v.refreshStatus = http.StatusBadRequest

	manager, store := newTestManager(t, v)
	require.NoError(t, store.Save(&ecobee.Token{
		AccessToken:  "stale",
		RefreshToken: "stale-refresh",
		Expiry:       time.Now().Add(-time.Minute).Unix(),
	}))

	_, err := manager.Token(context.Background())
	require.Error(t, err)
	assert.True(t, ecobee.IsAuthError(err), "a denied refresh is an auth error for the operator")
}
