package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/sjson"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driving"
	"github.com/custodia-labs/suitelink/internal/logger"
)

// NetSuite REST paths.
const (
	RecordPathPrefix = "/services/rest/record/v1/"
	SuiteQLPath      = "/services/rest/query/v1/suiteql"
)

// pingRecordType is fetched with limit=1 to prove the connection works.
const pingRecordType = "customer"

// RecordService wraps the record and SuiteQL endpoints.
type RecordService struct {
	client    driving.ResourceClient
	endpoints domain.ProviderEndpoints
	store     *CredentialStore
	clock     clockwork.Clock
}

// NewRecordService creates a record service.
func NewRecordService(
	client driving.ResourceClient,
	endpoints domain.ProviderEndpoints,
	store *CredentialStore,
	clock clockwork.Clock,
) *RecordService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RecordService{client: client, endpoints: endpoints, store: store, clock: clock}
}

// List returns a pager over all records of recordType.
func (s *RecordService) List(recordType string, pageSize int) (*Pager, error) {
	path, err := recordPath(recordType)
	if err != nil {
		return nil, err
	}
	return NewPager(s.client, domain.GetResource(path), pageSize), nil
}

// Get fetches one record into out.
func (s *RecordService) Get(ctx context.Context, recordType, id string, out any) error {
	path, err := recordPath(recordType)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: record id is required", domain.ErrInvalidInput)
	}
	return s.client.ExecuteInto(ctx, domain.GetResource(path+"/"+url.PathEscape(id)), out)
}

// Query returns a pager over the rows of a SuiteQL statement. The statement
// is sent verbatim.
func (s *RecordService) Query(q string, pageSize int) (*Pager, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	body, err := sjson.SetBytes([]byte(`{}`), "q", q)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	res := domain.PostResource(SuiteQLPath, body, domain.WithHeader("Prefer", "transient"))
	return NewPager(s.client, res, pageSize), nil
}

// Ping fetches a single customer to check configuration, tokens and API access.
func (s *RecordService) Ping(ctx context.Context) error {
	path, _ := recordPath(pingRecordType)
	_, err := s.client.Execute(ctx, domain.GetResource(path, domain.WithQuery("limit", "1")))
	return err
}

func recordPath(recordType string) (string, error) {
	recordType = strings.Trim(strings.TrimSpace(recordType), "/")
	if recordType == "" || strings.ContainsAny(recordType, "/?#") {
		return "", fmt.Errorf("%w: invalid record type %q", domain.ErrInvalidInput, recordType)
	}
	return RecordPathPrefix + recordType, nil
}

// Diagnostics describes the stored configuration and token state.
// Secrets are masked.
type Diagnostics struct {
	Provider        string
	Configured      bool
	Missing         []string
	ClientID        string
	ClientSecret    string
	AccountID       string
	RedirectURI     string
	AuthorizeURL    string
	TokenURL        string
	APIBaseURL      string
	HasAccessToken  bool
	HasRefreshToken bool
	ExpiresAt       time.Time
	Expired         bool
	VaultKeys       map[string]bool
}

// Diagnose reports what is stored for the provider without contacting it.
func (s *RecordService) Diagnose(ctx context.Context) (Diagnostics, error) {
	logger.Section("Diagnose")

	cfg, err := s.store.LoadConfiguration(ctx)
	if err != nil {
		return Diagnostics{}, err
	}

	d := Diagnostics{
		Provider:     s.endpoints.Name,
		Configured:   cfg.IsComplete(),
		Missing:      cfg.MissingFields(),
		ClientID:     logger.Mask(cfg.ClientID),
		ClientSecret: logger.Mask(cfg.ClientSecret),
		AccountID:    cfg.AccountID,
		RedirectURI:  cfg.RedirectURI,
		VaultKeys:    make(map[string]bool),
	}

	if resolved, err := s.endpoints.Resolve(cfg.AccountID); err == nil {
		d.AuthorizeURL = resolved.AuthorizeURL
		d.TokenURL = resolved.TokenURL
		d.APIBaseURL = resolved.APIBaseURL
	}

	tokens, ok, err := s.store.LoadTokens(ctx)
	if err != nil {
		return Diagnostics{}, err
	}
	if ok {
		d.HasAccessToken = true
		d.HasRefreshToken = tokens.HasRefreshToken()
		d.ExpiresAt = tokens.ExpiresAt
		d.Expired = tokens.NeedsRefresh(s.clock.Now())
	}

	for _, key := range s.store.Keys().All() {
		_, present, err := s.store.vault.Load(ctx, key)
		if err != nil {
			return Diagnostics{}, err
		}
		d.VaultKeys[key] = present
	}
	return d, nil
}
