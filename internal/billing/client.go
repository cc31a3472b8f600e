package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	u "totemgw/internal/utils"
)

const (
	tokenPath   = "/oauth2/token"
	pessoasPath = "/api/procedure/p_prcssa_dados/0177-valida-nome-benef"
	faturasPath = "/api/procedure/p_prcssa_dados/0177_busca_dados_fatura_aberto"
	boletoPath  = "/api/procedure/p_prcssa_dados/p_0177_json_busca_boleto"

	tokenMinTTL    = 30
	tokenMaxTTL    = 3600
	tokenMargin    = 15 * time.Second
	fallbackTTL    = 3000
	defaultTimeout = 10 * time.Second
)

// Client talks to the upstream billing API. It owns the single cached OAuth
// bearer token; everything else is per-request.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	scope        string
	docField     string
	mockPessoas  bool
	http         *http.Client
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient builds a billing client from the gateway configuration.
func NewClient(cfg u.Config) *Client {
	timeout := time.Duration(cfg.Billing.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	scope := cfg.Billing.Scope
	if scope == "" {
		scope = "read"
	}
	docField := cfg.Billing.PessoasDocField
	if docField == "" {
		docField = "documento"
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.Billing.BaseURL, "/"),
		clientID:     cfg.Billing.ClientID,
		clientSecret: cfg.Billing.ClientSecret,
		scope:        scope,
		docField:     docField,
		mockPessoas:  cfg.Billing.MockPessoas,
		http:         &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Token returns the cached bearer token while it is still valid, refreshing it
// through the client-credentials grant otherwise. A failed refresh caches
// nothing.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {c.scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &AuthError{Body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &AuthError{Body: err.Error()}
	}

	ttl := payload.ExpiresIn
	if ttl == 0 {
		ttl = fallbackTTL
	}
	if ttl < tokenMinTTL {
		ttl = tokenMinTTL
	}
	if ttl > tokenMaxTTL {
		ttl = tokenMaxTTL
	}

	c.token = payload.AccessToken
	c.expiresAt = now.Add(time.Duration(ttl)*time.Second - tokenMargin)
	return c.token, nil
}

// postJSON sends an authenticated JSON POST to the given API path and decodes
// the response body into out. Non-2xx responses become *UpstreamError.
func (c *Client) postJSON(ctx context.Context, op, path string, payload any, out any) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &UpstreamError{Op: op, Body: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &UpstreamError{Op: op, Body: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Body: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &UpstreamError{Op: op, Body: err.Error()}
	}
	return nil
}
