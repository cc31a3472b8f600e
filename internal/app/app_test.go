package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"totemgw/internal/billing"
	"totemgw/internal/handlers"
	"totemgw/internal/printer"
	u "totemgw/internal/utils"
)

type stubBilling struct{}

func (stubBilling) ConsultarPessoaPorDocumento(ctx context.Context, documento string) (*billing.PessoaRecord, error) {
	return &billing.PessoaRecord{TipPessoa: "F", NomePessoa: "Teste", DocPessoaSemFormatacao: documento}, nil
}

func (stubBilling) ValidarNomeBenef(ctx context.Context, payload map[string]any) (*billing.PessoaRecord, error) {
	return nil, nil
}

func (stubBilling) BuscarFaturas(ctx context.Context, cpfCnpj, contrato string) ([]json.RawMessage, error) {
	return []json.RawMessage{}, nil
}

func (stubBilling) BuscarURLBoleto(ctx context.Context, numeroFatura string) (string, error) {
	return "", billing.ErrBoletoNotFound
}

type stubPrinter struct{}

func (stubPrinter) Configured() bool     { return false }
func (stubPrinter) NeedsDocument() bool  { return true }
func (stubPrinter) Stats() printer.Stats { return printer.Stats{} }
func (stubPrinter) Print(ctx context.Context, job printer.Job) (*printer.Result, error) {
	return nil, printer.ErrNotConfigured
}

type stubMailer struct{}

func (stubMailer) Configured() bool { return false }
func (stubMailer) SendBoletoLink(ctx context.Context, to, boletoURL, proxyLink, numeroFatura string) error {
	return nil
}

// gatewayConfig builds a config without touching the filesystem or env.
func gatewayConfig() u.Config {
	var cfg u.Config
	cfg.Security.CORSOrigins = []string{"http://localhost:5173"}
	cfg.Security.AllowedDocDomains = []string{"unimedpatos.com.br", "127.0.0.1"}
	cfg.RateLimiter.Interval = time.Minute
	u.AppConfig = cfg
	return cfg
}

func gatewayApp(cfg u.Config) *fiber.App {
	svc := handlers.NewService(cfg, stubBilling{}, nil, stubPrinter{}, stubMailer{})
	return SetupApp(cfg, svc)
}

func jsonPost(target string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthRoute(t *testing.T) {
	app := gatewayApp(gatewayConfig())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFaturasWithoutContratoIsFlatError(t *testing.T) {
	app := gatewayApp(gatewayConfig())

	resp, err := app.Test(jsonPost("/api/faturas", map[string]string{"cpfCnpj": "01234567890"}))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()

	msg, ok := body["error"].(string)
	assert.True(t, ok, "error body must be flat {error: string}")
	assert.NotEmpty(t, msg)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	app := gatewayApp(gatewayConfig())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestCORSAllowsOnlyListedOrigins(t *testing.T) {
	app := gatewayApp(gatewayConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	resp, err = app.Test(req)
	assert.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "unlisted origins are never echoed")
}

func TestKioskKeyValidation(t *testing.T) {
	u.LoadKioskKeysFromMap(map[string]int{"kiosk-key-valid": 0})
	app := gatewayApp(gatewayConfig())

	// No key: open access on the kiosk LAN.
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Valid key.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-API-Key", "kiosk-key-valid")
	resp, err = app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Unknown key.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-API-Key", "kiosk-key-bogus")
	resp, err = app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestKioskKeyRateLimit(t *testing.T) {
	u.LoadKioskKeysFromMap(map[string]int{"kiosk-key-limited": 2})
	app := gatewayApp(gatewayConfig())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-API-Key", "kiosk-key-limited")
		resp, err := app.Test(req)
		assert.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestLookupThroughFullStack(t *testing.T) {
	app := gatewayApp(gatewayConfig())

	resp, err := app.Test(jsonPost("/api/identificacao/lookup", map[string]string{"documento": "01234567890"}))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "PF", body["tipoPessoa"])
	assert.Equal(t, "dt_nasc", body["exige"])
}
