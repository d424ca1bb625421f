package services

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driving"
)

// DefaultPageSize is used when a pager is created with a non-positive size.
const DefaultPageSize = 100

// ErrNoMorePages is returned by Next once the listing is exhausted.
var ErrNoMorePages = errors.New("no more pages")

// Pager walks a listing endpoint one page at a time.
//
// Pages come from the envelope {"items":[...],"hasMore":bool,"offset":n,
// "totalResults":n,"links":[{"rel":"next","href":"..."}]}. A next link is
// followed when present, otherwise limit/offset parameters are advanced.
// The run stops when hasMore is false or a page comes back short.
//
// No snapshot is taken across pages: if the data changes between fetches,
// items may repeat or be skipped.
type Pager struct {
	client   driving.ResourceClient
	base     domain.ResourceDescriptor
	pageSize int

	cursor domain.PageCursor
	number int
	done   bool
}

// NewPager creates a pager starting at offset zero.
func NewPager(client driving.ResourceClient, res domain.ResourceDescriptor, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Pager{client: client, base: res, pageSize: pageSize}
	p.Reset()
	return p
}

// Reset rewinds to the first page.
func (p *Pager) Reset() {
	p.cursor = domain.PageCursor{PageSize: p.pageSize, HasMore: true}
	p.number = 0
	p.done = false
}

// Done reports whether the listing is exhausted.
func (p *Pager) Done() bool {
	return p.done
}

// Cursor returns the position of the next fetch.
func (p *Pager) Cursor() domain.PageCursor {
	return p.cursor
}

// Next fetches the next page. After the last page it returns ErrNoMorePages.
// A failed fetch leaves the cursor unchanged so the call can be repeated.
func (p *Pager) Next(ctx context.Context) (domain.Page, error) {
	if p.done {
		return domain.Page{}, ErrNoMorePages
	}

	body, err := p.client.Execute(ctx, p.request())
	if err != nil {
		return domain.Page{}, err
	}

	page, err := p.parse(body)
	if err != nil {
		return domain.Page{}, err
	}

	p.cursor = page.Next
	p.number++
	p.done = !page.Next.HasMore
	return page, nil
}

func (p *Pager) request() domain.ResourceDescriptor {
	if p.cursor.NextLink != "" {
		opts := []domain.ResourceOption{domain.WithBody(p.base.Body())}
		for k, v := range p.base.Headers() {
			opts = append(opts, domain.WithHeader(k, v))
		}
		return domain.NewResource(p.base.Method(), p.cursor.NextLink, opts...)
	}
	return p.base.With(
		domain.WithQuery("limit", strconv.Itoa(p.pageSize)),
		domain.WithQuery("offset", strconv.Itoa(p.cursor.Offset)),
	)
}

func (p *Pager) parse(body []byte) (domain.Page, error) {
	invalid := func(msg string) error {
		return &domain.HTTPError{Kind: domain.ErrInvalidResponse, Body: body, Err: errors.New(msg)}
	}

	if !gjson.ValidBytes(body) {
		return domain.Page{}, invalid("page is not JSON")
	}
	env := gjson.ParseBytes(body)

	itemsField := env.Get("items")
	if !itemsField.IsArray() {
		return domain.Page{}, invalid("page has no items array")
	}
	var items []json.RawMessage
	itemsField.ForEach(func(_, item gjson.Result) bool {
		items = append(items, json.RawMessage(item.Raw))
		return true
	})

	offset := p.cursor.Offset
	if v := env.Get("offset"); v.Exists() {
		offset = int(v.Int())
	}

	hasMore := len(items) >= p.pageSize && len(items) > 0
	if v := env.Get("hasMore"); v.Exists() {
		hasMore = hasMore && v.Bool()
	}

	next := domain.PageCursor{PageSize: p.pageSize, HasMore: hasMore}
	if hasMore {
		next.NextLink = env.Get(`links.#(rel=="next").href`).String()
		next.Offset = offset + len(items)
	}

	total := len(items)
	if v := env.Get("totalResults"); v.Exists() {
		total = int(v.Int())
	}

	return domain.Page{
		Number:       p.number,
		Items:        items,
		TotalResults: total,
		Next:         next,
	}, nil
}

// All rewinds and yields every page in order. Iteration stops after the
// first error, which is yielded with an empty page.
func (p *Pager) All(ctx context.Context) iter.Seq2[domain.Page, error] {
	return func(yield func(domain.Page, error) bool) {
		p.Reset()
		for !p.done {
			page, err := p.Next(ctx)
			if err != nil {
				yield(domain.Page{}, err)
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// Collect rewinds and gathers the items of every page.
func (p *Pager) Collect(ctx context.Context) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for page, err := range p.All(ctx) {
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
