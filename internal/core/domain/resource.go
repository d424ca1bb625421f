package domain

import (
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// ResourceDescriptor describes one remote call independently of any
// business entity. It is immutable: options apply at construction and
// accessors return copies.
type ResourceDescriptor struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	body    []byte
}

// ResourceOption configures a ResourceDescriptor under construction.
type ResourceOption func(*ResourceDescriptor)

// NewResource builds a descriptor. An empty method means GET.
func NewResource(method, path string, opts ...ResourceOption) ResourceDescriptor {
	if method == "" {
		method = http.MethodGet
	}
	r := ResourceDescriptor{
		method:  strings.ToUpper(method),
		path:    path,
		query:   url.Values{},
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// GetResource is shorthand for a GET descriptor.
func GetResource(path string, opts ...ResourceOption) ResourceDescriptor {
	return NewResource(http.MethodGet, path, opts...)
}

// PostResource is shorthand for a POST descriptor with a JSON body.
func PostResource(path string, body []byte, opts ...ResourceOption) ResourceDescriptor {
	return NewResource(http.MethodPost, path, append([]ResourceOption{WithBody(body)}, opts...)...)
}

// WithQuery sets a query parameter, replacing earlier values.
func WithQuery(key, value string) ResourceOption {
	return func(r *ResourceDescriptor) {
		r.query.Set(key, value)
	}
}

// WithQueryValues merges query parameters.
func WithQueryValues(values url.Values) ResourceOption {
	return func(r *ResourceDescriptor) {
		for k, vs := range values {
			r.query[k] = slices.Clone(vs)
		}
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) ResourceOption {
	return func(r *ResourceDescriptor) {
		r.headers[http.CanonicalHeaderKey(key)] = value
	}
}

// WithBody sets the JSON request body. The slice is copied.
func WithBody(body []byte) ResourceOption {
	return func(r *ResourceDescriptor) {
		r.body = slices.Clone(body)
	}
}

// With returns a derived descriptor with extra options applied.
// The receiver is left untouched.
func (r ResourceDescriptor) With(opts ...ResourceOption) ResourceDescriptor {
	c := ResourceDescriptor{
		method:  r.method,
		path:    r.path,
		query:   r.Query(),
		headers: r.Headers(),
		body:    slices.Clone(r.body),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Method returns the HTTP method.
func (r ResourceDescriptor) Method() string { return r.method }

// Path returns the path relative to the API base, or an absolute URL.
func (r ResourceDescriptor) Path() string { return r.path }

// Query returns a copy of the query parameters.
func (r ResourceDescriptor) Query() url.Values {
	q := make(url.Values, len(r.query))
	for k, vs := range r.query {
		q[k] = slices.Clone(vs)
	}
	return q
}

// Headers returns a copy of the extra headers.
func (r ResourceDescriptor) Headers() map[string]string {
	return maps.Clone(r.headers)
}

// Body returns a copy of the request body.
func (r ResourceDescriptor) Body() []byte { return slices.Clone(r.body) }

// HasBody reports whether a body is attached.
func (r ResourceDescriptor) HasBody() bool { return len(r.body) > 0 }

// String renders the descriptor for logs.
func (r ResourceDescriptor) String() string {
	s := r.method + " " + r.path
	if len(r.query) > 0 {
		s += "?" + r.query.Encode()
	}
	return s
}
