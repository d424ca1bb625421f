package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suitelink/internal/core/domain"
)

// scriptedClient answers Execute calls from a list of bodies and records
// the descriptors it was given.
type scriptedClient struct {
	bodies   []string
	errAt    int
	requests []domain.ResourceDescriptor
}

func (c *scriptedClient) Execute(_ context.Context, res domain.ResourceDescriptor) ([]byte, error) {
	c.requests = append(c.requests, res)
	n := len(c.requests) - 1
	if c.errAt > 0 && n == c.errAt-1 {
		return nil, &domain.HTTPError{Kind: domain.ErrRequestFailed, StatusCode: 503}
	}
	if n >= len(c.bodies) {
		return nil, errors.New("unexpected request")
	}
	return []byte(c.bodies[n]), nil
}

func (c *scriptedClient) ExecuteInto(ctx context.Context, res domain.ResourceDescriptor, out any) error {
	body, err := c.Execute(ctx, res)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func pageBody(ids []int, hasMore bool, offset, total int, next string) string {
	items := make([]string, len(ids))
	for i, id := range ids {
		items[i] = fmt.Sprintf(`{"id":"%d"}`, id)
	}
	links := `[]`
	if next != "" {
		links = fmt.Sprintf(`[{"rel":"self","href":"x"},{"rel":"next","href":%q}]`, next)
	}
	return fmt.Sprintf(`{"links":%s,"count":%d,"hasMore":%t,"items":[%s],"offset":%d,"totalResults":%d}`,
		links, len(ids), hasMore, strings.Join(items, ","), offset, total)
}

func TestPager_OffsetMode(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		pageBody([]int{1, 2}, true, 0, 5, ""),
		pageBody([]int{3, 4}, true, 2, 5, ""),
		pageBody([]int{5}, false, 4, 5, ""),
	}}
	p := NewPager(client, domain.GetResource("/services/rest/record/v1/customer"), 2)

	var ids []string
	for page, err := range p.All(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, 5, page.TotalResults)
		for _, raw := range page.Items {
			var v struct{ ID string }
			require.NoError(t, json.Unmarshal(raw, &v))
			ids = append(ids, v.ID)
		}
	}

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
	assert.True(t, p.Done())
	require.Len(t, client.requests, 3)
	for i, wantOffset := range []string{"0", "2", "4"} {
		assert.Equal(t, "2", client.requests[i].Query().Get("limit"))
		assert.Equal(t, wantOffset, client.requests[i].Query().Get("offset"))
	}
}

func TestPager_FollowsNextLink(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		pageBody([]int{1, 2}, true, 0, 3, "https://api.example.com/services/rest/record/v1/customer?limit=2&offset=2"),
		pageBody([]int{3}, false, 2, 3, ""),
	}}
	p := NewPager(client, domain.GetResource("/services/rest/record/v1/customer", domain.WithHeader("Prefer", "transient")), 2)

	items, err := p.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 3)
	require.Len(t, client.requests, 2)
	second := client.requests[1]
	assert.Equal(t, "https://api.example.com/services/rest/record/v1/customer?limit=2&offset=2", second.Path())
	assert.Empty(t, second.Query(), "the link carries its own query")
	assert.Equal(t, "transient", second.Headers()["Prefer"])
}

func TestPager_NextLinkKeepsPostBody(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		pageBody([]int{1}, true, 0, 2, "https://api.example.com/q?offset=1"),
		pageBody([]int{2}, false, 1, 2, ""),
	}}
	p := NewPager(client, domain.PostResource(SuiteQLPath, []byte(`{"q":"SELECT 1"}`)), 1)

	_, err := p.Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, client.requests[1].Method())
	assert.JSONEq(t, `{"q":"SELECT 1"}`, string(client.requests[1].Body()))
}

func TestPager_ShortPageStops(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		// hasMore claims more, but the page is short.
		pageBody([]int{1}, true, 0, 10, ""),
	}}
	p := NewPager(client, domain.GetResource("/r"), 5)

	items, err := p.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Len(t, client.requests, 1)
}

func TestPager_EmptyListing(t *testing.T) {
	client := &scriptedClient{bodies: []string{pageBody(nil, false, 0, 0, "")}}
	p := NewPager(client, domain.GetResource("/r"), 5)

	page, err := p.Next(context.Background())

	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.True(t, p.Done())

	_, err = p.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoMorePages)
}

func TestPager_ErrorKeepsCursor(t *testing.T) {
	client := &scriptedClient{
		bodies: []string{pageBody([]int{1, 2}, true, 0, 4, ""), "", pageBody([]int{3, 4}, false, 2, 4, "")},
		errAt:  2,
	}
	p := NewPager(client, domain.GetResource("/r"), 2)

	_, err := p.Next(context.Background())
	require.NoError(t, err)

	_, err = p.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrRequestFailed)
	assert.False(t, p.Done())
	assert.Equal(t, 2, p.Cursor().Offset)

	page, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, "2", client.requests[2].Query().Get("offset"))
}

func TestPager_AllStopsOnError(t *testing.T) {
	client := &scriptedClient{bodies: []string{pageBody([]int{1, 2}, true, 0, 4, "")}, errAt: 2}
	p := NewPager(client, domain.GetResource("/r"), 2)

	var pages, errs int
	for _, err := range p.All(context.Background()) {
		if err != nil {
			errs++
			continue
		}
		pages++
	}

	assert.Equal(t, 1, pages)
	assert.Equal(t, 1, errs)
}

func TestPager_ResetRestartsFromZero(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		pageBody([]int{1}, false, 0, 1, ""),
		pageBody([]int{1}, false, 0, 1, ""),
	}}
	p := NewPager(client, domain.GetResource("/r"), 1)

	_, err := p.Next(context.Background())
	require.NoError(t, err)
	require.True(t, p.Done())

	p.Reset()
	assert.False(t, p.Done())
	_, err = p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0", client.requests[1].Query().Get("offset"))
}

func TestPager_InvalidEnvelope(t *testing.T) {
	for _, body := range []string{`not json`, `{"rows":[]}`, `{"items":{}}`} {
		client := &scriptedClient{bodies: []string{body}}
		p := NewPager(client, domain.GetResource("/r"), 10)

		_, err := p.Next(context.Background())

		assert.ErrorIs(t, err, domain.ErrInvalidResponse, body)
		var httpErr *domain.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, body, string(httpErr.Body))
	}
}

func TestPager_DefaultPageSize(t *testing.T) {
	p := NewPager(&scriptedClient{}, domain.GetResource("/r"), 0)

	assert.Equal(t, DefaultPageSize, p.Cursor().PageSize)
}

func TestDecodeItemsFromPage(t *testing.T) {
	client := &scriptedClient{bodies: []string{pageBody([]int{1, 2}, false, 0, 2, "")}}
	p := NewPager(client, domain.GetResource("/r"), 10)

	page, err := p.Next(context.Background())
	require.NoError(t, err)

	rows, err := domain.DecodeItems[struct {
		ID string `json:"id"`
	}](page)
	require.NoError(t, err)
	assert.Equal(t, "2", rows[1].ID)
}
