package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetSuiteEndpoints_Resolve(t *testing.T) {
	p, err := NetSuiteEndpoints().Resolve("TSTDRV1870144")
	require.NoError(t, err)

	assert.Equal(t, "https://tstdrv1870144.app.netsuite.com/app/login/oauth2/authorize.nl", p.AuthorizeURL)
	assert.Equal(t,
		"https://tstdrv1870144.suitetalk.api.netsuite.com/services/rest/auth/oauth2/v1/token", p.TokenURL)
	assert.Equal(t, "https://tstdrv1870144.suitetalk.api.netsuite.com", p.APIBaseURL)
	assert.Equal(t, []string{"restlets", "rest_webservices"}, p.Scopes())
}

func TestProviderEndpoints_Resolve_RequiresAccount(t *testing.T) {
	_, err := NetSuiteEndpoints().Resolve("")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProviderEndpoints_Resolve_NoPlaceholder(t *testing.T) {
	p := ProviderEndpoints{
		Name:       "static",
		TokenURL:   "https://auth.example.test/token",
		APIBaseURL: "https://api.example.test/",
	}
	r, err := p.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", r.APIBaseURL)
}

func TestAccountHost(t *testing.T) {
	assert.Equal(t, "1234567-sb1", AccountHost("1234567_SB1"))
	assert.Equal(t, "abc", AccountHost(" ABC "))
}

func TestKeysFor(t *testing.T) {
	k := KeysFor("netsuite")

	assert.Equal(t, "netsuite_client_id", k.ClientID)
	assert.Equal(t, "netsuite_token_expiry", k.TokenExpiry)
	assert.Len(t, k.Configuration(), 4)
	assert.Len(t, k.Tokens(), 3)
	assert.Len(t, k.All(), 7)
}

func TestProviderPreset(t *testing.T) {
	p, ok := ProviderPreset(" NetSuite ")
	require.True(t, ok)
	assert.Equal(t, "netsuite", p.Name)

	_, ok = ProviderPreset("salesforce")
	assert.False(t, ok)
}
