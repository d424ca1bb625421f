package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suitelink/internal/core/domain"
)

func customers(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"id": string(rune('1' + i)), "companyName": "Company"}
	}
	return out
}

func TestRecordService_List(t *testing.T) {
	s := newStack(t)
	s.login(t)
	s.provider.SetRecords("customer", customers(5))

	pager, err := s.records.List("customer", 2)
	require.NoError(t, err)
	items, err := pager.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.True(t, pager.Done())
}

func TestRecordService_List_InvalidType(t *testing.T) {
	s := newStack(t)

	for _, recordType := range []string{"", "  ", "customer/1", "a?b"} {
		_, err := s.records.List(recordType, 10)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, recordType)
	}
}

func TestRecordService_Get(t *testing.T) {
	s := newStack(t)
	s.login(t)
	s.provider.SetRecords("customer", customers(3))

	var c customer
	require.NoError(t, s.records.Get(context.Background(), "customer", "2", &c))
	assert.Equal(t, "2", c.ID)

	err := s.records.Get(context.Background(), "customer", "99", &c)
	assert.ErrorIs(t, err, domain.ErrRequestFailed)

	err = s.records.Get(context.Background(), "customer", " ", &c)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordService_Query(t *testing.T) {
	s := newStack(t)
	s.login(t)
	s.provider.SetRecords("invoice", customers(3))

	pager, err := s.records.Query("SELECT id FROM invoice", 2)
	require.NoError(t, err)

	var pages int
	var total int
	for page, err := range pager.All(context.Background()) {
		require.NoError(t, err)
		pages++
		total += len(page.Items)
		assert.Equal(t, 3, page.TotalResults)
	}
	assert.Equal(t, 2, pages)
	assert.Equal(t, 3, total)

	_, err = s.records.Query("   ", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordService_Ping(t *testing.T) {
	s := newStack(t)

	err := s.records.Ping(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	s.login(t)
	require.NoError(t, s.records.Ping(context.Background()))
}

func TestRecordService_Diagnose(t *testing.T) {
	s := newStack(t)

	d, err := s.records.Diagnose(context.Background())
	require.NoError(t, err)
	assert.False(t, d.Configured)
	assert.ElementsMatch(t, []string{"client_id", "client_secret", "account_id", "redirect_uri"}, d.Missing)
	assert.False(t, d.HasAccessToken)

	s.login(t)
	s.clock.Advance(2 * time.Hour)

	d, err = s.records.Diagnose(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Configured)
	assert.Equal(t, "****", d.ClientID)
	assert.Equal(t, "****", d.ClientSecret)
	assert.Equal(t, s.provider.URL(), d.APIBaseURL)
	assert.True(t, d.HasAccessToken)
	assert.True(t, d.HasRefreshToken)
	assert.True(t, d.Expired)
	assert.True(t, d.VaultKeys["netsuite_access_token"])
}
