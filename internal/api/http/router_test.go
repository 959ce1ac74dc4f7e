package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/metrics"
	"susu-ledger-backend/internal/repository/sqlstore"
	"susu-ledger-backend/internal/security"
	"susu-ledger-backend/internal/service"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

type apiFixture struct {
	t      *testing.T
	server *httptest.Server
	tokens security.TokenManager
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store, err := sqlstore.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	tokens := security.NewTokenManager(testSecret, "susu-test")
	svcs := service.New(service.Deps{Store: store, Metrics: m})
	srv := httptest.NewServer(NewRouter(RouterDependencies{
		Services: svcs,
		Tokens:   tokens,
		Health:   store,
		Metrics:  m,
	}))
	t.Cleanup(srv.Close)
	return &apiFixture{t: t, server: srv, tokens: tokens}
}

func (f *apiFixture) accessToken(account string) string {
	tok, err := f.tokens.GenerateAccessToken(domain.AccountID(account), domain.WalletKindPlug, time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *apiFixture) settlementToken() string {
	tok, err := f.tokens.GenerateSettlementToken("gateway", time.Hour)
	require.NoError(f.t, err)
	return tok
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (f *apiFixture) do(method, path, token string, body any, out any) *http.Response {
	f.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(f.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *apiFixture) register(account string) string {
	tok := f.accessToken(account)
	resp := f.do(http.MethodPost, "/api/v1/users", tok, registerUserRequest{WalletKind: domain.WalletKindPlug}, nil)
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
	return tok
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	var health map[string]any
	resp := f.do(http.MethodGet, "/healthz", "", nil, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/metrics", nil)
	require.NoError(t, err)
	mresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRouter_Authentication(t *testing.T) {
	f := newAPIFixture(t)

	var errResp errorBody
	resp := f.do(http.MethodGet, "/api/v1/users/me", "", nil, &errResp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, KindUnauthenticated, errResp.Error.Kind)

	resp = f.do(http.MethodGet, "/api/v1/users/me", "not-a-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/v1/users/me", f.settlementToken(), nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(http.MethodPost, "/api/v1/settlements/confirm", f.accessToken("alice"),
		confirmSettlementRequest{Reference: "x", Outcome: domain.TransactionCompleted}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_UserLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	var errResp errorBody
	resp := f.do(http.MethodGet, "/api/v1/users/me", f.accessToken("alice"), nil, &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, domain.KindNotFound, errResp.Error.Kind)
	assert.False(t, errResp.Error.Retryable)

	tok := f.register("alice")
	f.register("alice")

	var user userDTO
	resp = f.do(http.MethodGet, "/api/v1/users/me", tok, nil, &user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.AccountID("alice"), user.ID)
	assert.Equal(t, domain.WalletKindPlug, user.WalletKind)
	assert.NotZero(t, user.CreatedAt)

	var dash dashboardDTO
	resp = f.do(http.MethodGet, "/api/v1/dashboard", tok, nil, &dash)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), dash.TotalBalance)
	assert.NotNil(t, dash.ActiveGroups)
}

func TestRouter_WalletAndSettlement(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.register("alice")
	ref := "gw-1"
	momo := methodDTO{Type: domain.PaymentMobileMoney, Provider: domain.ProviderMTN}

	var receipt receiptDTO
	resp := f.do(http.MethodPost, "/api/v1/wallet/deposit", tok, depositRequest{Amount: 500, Method: momo, Reference: &ref}, &receipt)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, domain.TransactionPending, receipt.Transaction.Status)
	assert.Equal(t, "mobileMoney", string(receipt.Transaction.Method.Type))

	resp = f.do(http.MethodPost, "/api/v1/settlements/confirm", f.settlementToken(),
		confirmSettlementRequest{Reference: ref, Outcome: domain.TransactionCompleted}, &receipt)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.TransactionCompleted, receipt.Transaction.Status)
	assert.NotNil(t, receipt.Transaction.SettledAt)

	var user userDTO
	f.do(http.MethodGet, "/api/v1/users/me", tok, nil, &user)
	assert.Equal(t, int64(500), user.Balance)

	var errResp errorBody
	resp = f.do(http.MethodPost, "/api/v1/wallet/withdraw", tok, withdrawRequest{Amount: 501, Method: momo}, &errResp)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, domain.KindInsufficientFunds, errResp.Error.Kind)

	resp = f.do(http.MethodPost, "/api/v1/wallet/withdraw", tok, withdrawRequest{Amount: 0, Method: momo}, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var page historyDTO
	resp = f.do(http.MethodGet, "/api/v1/users/me/transactions?limit=1", tok, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, page.Transactions, 1)
	assert.Empty(t, page.NextCursor)

	resp = f.do(http.MethodGet, "/api/v1/users/me/transactions?cursor=garbage", tok, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_Groups(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register("alice")
	bob := f.register("bob")

	var group groupDTO
	resp := f.do(http.MethodPost, "/api/v1/groups", alice, createGroupRequest{
		Name:               "Market women",
		ContributionAmount: 100,
		Frequency:          domain.FrequencyWeekly,
		MaxMembers:         3,
		StartDate:          time.Now().Add(time.Hour).UnixNano(),
	}, &group)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, group.Members, 1)
	assert.Equal(t, domain.GroupStatusForming, group.Status)

	resp = f.do(http.MethodPost, "/api/v1/groups/join", bob,
		joinGroupRequest{GroupCode: strings.ToLower(string(group.ID))}, &group)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, group.Members, 2)

	var errResp errorBody
	resp = f.do(http.MethodPost, "/api/v1/groups/join", bob, joinGroupRequest{GroupCode: string(group.ID)}, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, domain.KindAlreadyMember, errResp.Error.Kind)

	// not started yet, so nothing can be contributed
	resp = f.do(http.MethodPost, "/api/v1/groups/"+string(group.ID)+"/contributions", bob, contributeRequest{
		Amount: 100, Method: methodDTO{Type: domain.PaymentCrypto},
	}, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, domain.KindGroupClosed, errResp.Error.Kind)

	resp = f.do(http.MethodPost, "/api/v1/groups/"+string(group.ID)+"/advance", bob, nil, &errResp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var got groupDTO
	resp = f.do(http.MethodGet, "/api/v1/groups/"+string(group.ID), bob, nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, group.ID, got.ID)

	resp = f.do(http.MethodGet, "/api/v1/groups/ZZZZZZZZ", bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var mine struct {
		Groups []groupDTO `json:"groups"`
	}
	resp = f.do(http.MethodGet, "/api/v1/groups", bob, nil, &mine)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, mine.Groups, 1)

	var list notificationListDTO
	resp = f.do(http.MethodGet, "/api/v1/notifications", alice, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, list.Notifications)
	assert.Equal(t, domain.NotificationMemberJoined, list.Notifications[0].Type)

	resp = f.do(http.MethodPost, "/api/v1/notifications/"+list.Notifications[0].ID+"/read", alice, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(http.MethodPost, "/api/v1/notifications/"+list.Notifications[0].ID+"/read", bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_RejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.register("alice")
	resp := f.do(http.MethodPost, "/api/v1/wallet/deposit", tok, map[string]any{"amount": 1, "colour": "red"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		retryable bool
	}{
		{domain.NotFound("x"), http.StatusNotFound, false},
		{domain.Unauthorized("x"), http.StatusForbidden, false},
		{domain.BadRequest("x"), http.StatusBadRequest, false},
		{domain.InsufficientFunds("x"), http.StatusPaymentRequired, false},
		{domain.GroupFull("x"), http.StatusConflict, false},
		{domain.AlreadyPaidOut("x"), http.StatusConflict, false},
		{domain.Busy("x"), http.StatusServiceUnavailable, true},
		{domain.Internal(io.ErrUnexpectedEOF, "x"), http.StatusInternalServerError, false},
		{io.EOF, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.retryable, body.Error.Retryable)
		if tt.retryable {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
		if tt.status == http.StatusInternalServerError {
			assert.Equal(t, "internal error", body.Error.Message)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := &domain.HistoryCursor{Timestamp: time.Unix(0, 1_767_600_000_123_456_789).UTC(), ID: "abc:def"}
	got, err := decodeCursor(encodeCursor(c))
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(c.Timestamp))
	assert.Equal(t, c.ID, got.ID)

	_, err = decodeCursor("12")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
