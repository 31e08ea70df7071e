package mapping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/crestline-fin/crestline/internal/chart"
)

// ModelClient wraps the external AI matching service. Any failure here is
// recoverable: the resolver falls back to the heuristic matcher.
type ModelClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewModelClient constructs a client for the matching service.
func NewModelClient(baseURL, apiKey string, timeout time.Duration) *ModelClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ModelClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *ModelClient) Name() string { return "model" }

// Ping checks if the remote matching service is available.
func (c *ModelClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("matcher service returned status %d", resp.StatusCode)
	}
	return nil
}

type matchAccountPayload struct {
	ID            uuid.UUID `json:"id"`
	AccountNumber string    `json:"account_number"`
	Name          string    `json:"name"`
	AccountType   string    `json:"account_type"`
}

type matchRequest struct {
	CompanyAccounts []matchAccountPayload `json:"company_accounts"`
	MasterAccounts  []matchAccountPayload `json:"master_accounts"`
}

type matchResponse struct {
	Matches []struct {
		CompanyAccountID uuid.UUID `json:"company_account_id"`
		MasterAccountID  uuid.UUID `json:"master_account_id"`
		Confidence       float64   `json:"confidence"`
		Reasoning        string    `json:"reasoning"`
		Alternatives     []string  `json:"alternatives"`
	} `json:"matches"`
}

// MatchBatch sends the unmapped accounts and the master chart to the
// matching service in one request. The response is cross-checked against
// the inputs so a malformed answer surfaces as an error instead of a bogus
// suggestion.
func (c *ModelClient) MatchBatch(ctx context.Context, accounts []chart.CompanyAccount, masters []chart.MasterAccount) ([]MappingSuggestion, error) {
	reqBody := matchRequest{
		CompanyAccounts: make([]matchAccountPayload, 0, len(accounts)),
		MasterAccounts:  make([]matchAccountPayload, 0, len(masters)),
	}
	accByID := make(map[uuid.UUID]chart.CompanyAccount, len(accounts))
	for _, acc := range accounts {
		accByID[acc.ID] = acc
		reqBody.CompanyAccounts = append(reqBody.CompanyAccounts, matchAccountPayload{
			ID:            acc.ID,
			AccountNumber: acc.AccountNumber,
			Name:          acc.Name,
			AccountType:   string(acc.Type),
		})
	}
	masterByID := make(map[uuid.UUID]chart.MasterAccount, len(masters))
	for _, m := range masters {
		if !m.Active {
			continue
		}
		masterByID[m.ID] = m
		reqBody.MasterAccounts = append(reqBody.MasterAccounts, matchAccountPayload{
			ID:            m.ID,
			AccountNumber: m.AccountNumber,
			Name:          m.Name,
			AccountType:   string(m.Type),
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/match", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("matcher service returned status %d", resp.StatusCode)
	}

	var decoded matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode matcher response: %w", err)
	}

	suggestions := make([]MappingSuggestion, 0, len(decoded.Matches))
	for _, m := range decoded.Matches {
		acc, ok := accByID[m.CompanyAccountID]
		if !ok {
			return nil, fmt.Errorf("matcher returned unknown company account %s", m.CompanyAccountID)
		}
		masterAcc, ok := masterByID[m.MasterAccountID]
		if !ok {
			return nil, fmt.Errorf("matcher returned unknown master account %s", m.MasterAccountID)
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			return nil, fmt.Errorf("matcher returned confidence %.4f out of range", m.Confidence)
		}
		reasoning := m.Reasoning
		if reasoning == "" {
			reasoning = fmt.Sprintf("model matched %q to %q", acc.Name, masterAcc.Name)
		}
		cand := scoreCandidate(nameTokens(acc.Name), acc.Name, masterAcc)
		suggestions = append(suggestions, MappingSuggestion{
			CompanyAccountID:   acc.ID,
			MasterAccountID:    masterAcc.ID,
			ConfidenceScore:    m.Confidence,
			AccountTypeMatch:   acc.Type == masterAcc.Type,
			NameSimilarity:     similarityBucket(cand.nameScore),
			Reasoning:          reasoning,
			AlternativeMatches: m.Alternatives,
		})
	}
	return suggestions, nil
}
