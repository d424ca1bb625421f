// Package fakeprovider is an in-process OAuth authorization server and
// record API for tests. It speaks the same wire format as NetSuite's
// token, record and SuiteQL endpoints.
package fakeprovider

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/custodia-labs/suitelink/internal/core/domain"
)

// Paths served by the fake.
const (
	AuthorizePath = "/authorize"
	TokenPath     = "/token"
)

// TokenResponse is a token endpoint answer queued by a test.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is sent verbatim, so it may be a number or a string.
	ExpiresIn any
}

// Failure is an error answer queued by a test.
type Failure struct {
	Status int
	Body   string
}

// Provider is a fake authorization server and record API.
type Provider struct {
	Server       *httptest.Server
	ClientID     string
	ClientSecret string

	mu             sync.Mutex
	codes          map[string]string // code -> code_challenge
	validAccess    map[string]bool
	validRefresh   map[string]bool
	queued         []TokenResponse
	refreshFailure *Failure
	refreshDelay   time.Duration
	rejectNext     int
	records        map[string][]map[string]any
	lastAPIToken   string
	serial         int

	RefreshCalls  atomic.Int64
	ExchangeCalls atomic.Int64
	APICalls      atomic.Int64
}

// New starts a fake provider. Close it with Provider.Close.
func New(clientID, clientSecret string) *Provider {
	p := &Provider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		codes:        make(map[string]string),
		validAccess:  make(map[string]bool),
		validRefresh: make(map[string]bool),
		records:      make(map[string][]map[string]any),
	}

	r := mux.NewRouter()
	r.HandleFunc(AuthorizePath, p.handleAuthorize).Methods(http.MethodGet)
	r.HandleFunc(TokenPath, p.handleToken).Methods(http.MethodPost)

	api := r.PathPrefix("/services/rest").Subrouter()
	api.Use(p.requireBearer)
	api.HandleFunc("/record/v1/{type}", p.handleList).Methods(http.MethodGet)
	api.HandleFunc("/record/v1/{type}/{id}", p.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/query/v1/suiteql", p.handleSuiteQL).Methods(http.MethodPost)

	p.Server = httptest.NewServer(r)
	return p
}

// Close shuts the server down.
func (p *Provider) Close() {
	p.Server.Close()
}

// URL returns the server base URL.
func (p *Provider) URL() string {
	return p.Server.URL
}

// Endpoints returns provider endpoints pointing at the fake.
func (p *Provider) Endpoints() domain.ProviderEndpoints {
	return domain.ProviderEndpoints{
		Name:            "netsuite",
		AuthorizeURL:    p.Server.URL + AuthorizePath,
		TokenURL:        p.Server.URL + TokenPath,
		APIBaseURL:      p.Server.URL,
		Scope:           "restlets rest_webservices",
		RedirectSchemes: []string{"app", "http"},
	}
}

// IssueCode registers an authorization code bound to a PKCE challenge.
// An empty challenge accepts any verifier.
func (p *Provider) IssueCode(code, challenge string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = challenge
}

// QueueTokens sets the answers of the next token requests, in order.
// When the queue is empty the fake mints tokens itself.
func (p *Provider) QueueTokens(responses ...TokenResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, responses...)
}

// FailRefresh makes every refresh grant answer with f. Nil clears it.
func (p *Provider) FailRefresh(f *Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshFailure = f
}

// SlowRefresh delays refresh answers so concurrent callers overlap.
func (p *Provider) SlowRefresh(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshDelay = d
}

// GrantAccess marks tokens as valid without a token exchange.
func (p *Provider) GrantAccess(accessToken, refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validAccess[accessToken] = true
	if refreshToken != "" {
		p.validRefresh[refreshToken] = true
	}
}

// Revoke invalidates an access token server-side.
func (p *Provider) Revoke(accessToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.validAccess, accessToken)
}

// RejectNext answers the next n API requests with 401 whatever the token.
func (p *Provider) RejectNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectNext = n
}

// LastAPIToken returns the bearer token of the last accepted API request.
func (p *Provider) LastAPIToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAPIToken
}

// SetRecords replaces the records of one type.
func (p *Provider) SetRecords(recordType string, records []map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[recordType] = records
}

func (p *Provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != p.ClientID || q.Get("response_type") != "code" {
		http.Error(w, "bad authorization request", http.StatusBadRequest)
		return
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		http.Error(w, "pkce required", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.serial++
	code := fmt.Sprintf("code-%d", p.serial)
	p.codes[code] = q.Get("code_challenge")
	p.mu.Unlock()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)
		return
	}
	rq := redirect.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	redirect.RawQuery = rq.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if ok {
		user, _ = url.QueryUnescape(user)
		pass, _ = url.QueryUnescape(pass)
	}
	if !ok || user != p.ClientID || pass != p.ClientSecret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.ExchangeCalls.Add(1)
		p.exchange(w, r.PostForm)
	case "refresh_token":
		p.RefreshCalls.Add(1)
		p.refresh(w, r.PostForm)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (p *Provider) exchange(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	challenge, ok := p.codes[form.Get("code")]
	delete(p.codes, form.Get("code"))
	p.mu.Unlock()

	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown or used code")
		return
	}
	if challenge != "" {
		sum := sha256.Sum256([]byte(form.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier mismatch")
			return
		}
	}
	p.writeTokens(w, "")
}

func (p *Provider) refresh(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	delay := p.refreshDelay
	failure := p.refreshFailure
	valid := p.validRefresh[form.Get("refresh_token")]
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failure != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(failure.Status)
		_, _ = w.Write([]byte(failure.Body))
		return
	}
	if !valid {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is not valid")
		return
	}
	p.writeTokens(w, form.Get("refresh_token"))
}

// writeTokens answers with the next queued or minted token pair. Refresh
// tokens rotate: the one just used is invalidated.
func (p *Provider) writeTokens(w http.ResponseWriter, usedRefresh string) {
	p.mu.Lock()
	var resp TokenResponse
	if len(p.queued) > 0 {
		resp = p.queued[0]
		p.queued = p.queued[1:]
	} else {
		p.serial++
		resp = TokenResponse{
			AccessToken:  fmt.Sprintf("access-%d", p.serial),
			RefreshToken: fmt.Sprintf("refresh-%d", p.serial),
			ExpiresIn:    3600,
		}
	}
	if usedRefresh != "" && resp.RefreshToken != "" {
		delete(p.validRefresh, usedRefresh)
	}
	p.validAccess[resp.AccessToken] = true
	if resp.RefreshToken != "" {
		p.validRefresh[resp.RefreshToken] = true
	}
	p.mu.Unlock()

	body := map[string]any{
		"access_token": resp.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   resp.ExpiresIn,
	}
	if resp.RefreshToken != "" {
		body["refresh_token"] = resp.RefreshToken
	}
	writeJSON(w, http.StatusOK, body)
}

func (p *Provider) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.APICalls.Add(1)
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		p.mu.Lock()
		reject := p.rejectNext > 0
		if reject {
			p.rejectNext--
		}
		valid := ok && p.validAccess[token]
		if valid && !reject {
			p.lastAPIToken = token
		}
		p.mu.Unlock()

		if reject || !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"title":  "Unauthorized",
				"status": http.StatusUnauthorized,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Provider) handleList(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	all := p.records[mux.Vars(r)["type"]]
	p.mu.Unlock()
	p.writePage(w, r, all)
}

func (p *Provider) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p.mu.Lock()
	all := p.records[vars["type"]]
	p.mu.Unlock()

	for _, rec := range all {
		if fmt.Sprint(rec["id"]) == vars["id"] {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"title": "Not Found", "status": http.StatusNotFound})
}

// handleSuiteQL accepts "SELECT ... FROM <type>" and lists that type.
func (p *Provider) handleSuiteQL(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Prefer") != "transient" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"title": "Prefer: transient required"})
		return
	}
	var req struct {
		Q string `json:"q"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"title": "invalid query"})
		return
	}
	fields := strings.Fields(strings.ToLower(req.Q))
	var table string
	for i, f := range fields {
		if f == "from" && i+1 < len(fields) {
			table = fields[i+1]
		}
	}

	p.mu.Lock()
	all := p.records[table]
	p.mu.Unlock()
	p.writePage(w, r, all)
}

func (p *Provider) writePage(w http.ResponseWriter, r *http.Request, all []map[string]any) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 1000
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	offset = max(offset, 0)

	end := min(offset+limit, len(all))
	items := []map[string]any{}
	if offset < len(all) {
		items = all[offset:end]
	}
	hasMore := end < len(all)

	links := []map[string]string{{"rel": "self", "href": p.Server.URL + r.URL.RequestURI()}}
	if hasMore {
		next := *r.URL
		q := next.Query()
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(end))
		next.RawQuery = q.Encode()
		links = append(links, map[string]string{"rel": "next", "href": p.Server.URL + next.RequestURI()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"links":        links,
		"count":        len(items),
		"hasMore":      hasMore,
		"items":        items,
		"offset":       offset,
		"totalResults": len(all),
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
