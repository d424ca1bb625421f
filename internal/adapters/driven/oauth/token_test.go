package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithHTTPClient(srv.Client()), WithClock(clockwork.NewFakeClockAt(testNow))), srv.URL + "/token"
}

func TestExchangeCode_Success(t *testing.T) {
	client, tokenURL := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "C1", user)
		assert.Equal(t, "S1", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "X", r.PostForm.Get("code"))
		assert.Equal(t, "app://callback", r.PostForm.Get("redirect_uri"))
		assert.Equal(t, "verifier", r.PostForm.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"A","refresh_token":"R","token_type":"Bearer","expires_in":3600}`))
	})

	tokens, err := client.ExchangeCode(context.Background(), driven.CodeExchange{
		TokenURL:     tokenURL,
		Client:       driven.ClientCredentials{ClientID: "C1", ClientSecret: "S1"},
		Code:         "X",
		RedirectURI:  "app://callback",
		CodeVerifier: "verifier",
	})

	require.NoError(t, err)
	assert.Equal(t, "A", tokens.AccessToken)
	assert.Equal(t, "R", tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, testNow.Add(time.Hour), tokens.ExpiresAt)
}

func TestRefresh_Success(t *testing.T) {
	client, tokenURL := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "R", r.PostForm.Get("refresh_token"))
		_, _ = w.Write([]byte(`{"access_token":"B","expires_in":"1800"}`))
	})

	tokens, err := client.Refresh(context.Background(), driven.RefreshExchange{
		TokenURL:     tokenURL,
		Client:       driven.ClientCredentials{ClientID: "C1", ClientSecret: "S1"},
		RefreshToken: "R",
	})

	require.NoError(t, err)
	assert.Equal(t, "B", tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, testNow.Add(30*time.Minute), tokens.ExpiresAt)
}

func TestRefresh_OAuthError(t *testing.T) {
	client, tokenURL := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	})

	_, err := client.Refresh(context.Background(), driven.RefreshExchange{TokenURL: tokenURL, RefreshToken: "R"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)

	var oauthErr *domain.OAuthError
	require.True(t, errors.As(err, &oauthErr))
	assert.Equal(t, "invalid_grant", oauthErr.Code)
	assert.Equal(t, "refresh token revoked", oauthErr.Description)
	assert.Equal(t, http.StatusBadRequest, oauthErr.StatusCode)
}

func TestExchangeCode_NonJSONError(t *testing.T) {
	client, tokenURL := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.ExchangeCode(context.Background(), driven.CodeExchange{TokenURL: tokenURL})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.ErrorIs(t, err, domain.ErrRequestFailed)

	var httpErr *domain.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "upstream down", string(httpErr.Body))
}

func TestExchangeCode_TransportError(t *testing.T) {
	client := NewClient()

	_, err := client.ExchangeCode(context.Background(), driven.CodeExchange{TokenURL: "http://127.0.0.1:0/token"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
}

func TestParseTokenResponse_ExpiresIn(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    time.Duration
		wantErr bool
	}{
		{name: "number", body: `{"access_token":"A","expires_in":3600}`, want: time.Hour},
		{name: "numeric string", body: `{"access_token":"A","expires_in":"3600"}`, want: time.Hour},
		{name: "padded string", body: `{"access_token":"A","expires_in":" 60 "}`, want: time.Minute},
		{name: "missing", body: `{"access_token":"A"}`, wantErr: true},
		{name: "null", body: `{"access_token":"A","expires_in":null}`, wantErr: true},
		{name: "text", body: `{"access_token":"A","expires_in":"soon"}`, wantErr: true},
		{name: "fraction", body: `{"access_token":"A","expires_in":1.5}`, wantErr: true},
		{name: "zero", body: `{"access_token":"A","expires_in":0}`, wantErr: true},
		{name: "negative", body: `{"access_token":"A","expires_in":-5}`, wantErr: true},
		{name: "bool", body: `{"access_token":"A","expires_in":true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := parseTokenResponse([]byte(tt.body), testNow)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testNow.Add(tt.want), tokens.ExpiresAt)
		})
	}
}

func TestParseTokenResponse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>oops</html>`},
		{name: "no access token", body: `{"expires_in":3600}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTokenResponse([]byte(tt.body), testNow)

			var httpErr *domain.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, domain.ErrInvalidResponse, httpErr.Kind)
			assert.Equal(t, tt.body, string(httpErr.Body))
		})
	}
}

func TestTokenRequest_BasicAuthIsNotEscaped(t *testing.T) {
	const secret = "a+b/c=d e"
	client, tokenURL := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("C1:"+secret))
		assert.Equal(t, want, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"access_token":"A","refresh_token":"R","expires_in":3600}`))
	})

	_, err := client.Refresh(context.Background(), driven.RefreshExchange{
		TokenURL:     tokenURL,
		Client:       driven.ClientCredentials{ClientID: "C1", ClientSecret: secret},
		RefreshToken: "R",
	})

	require.NoError(t, err)
}
