package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"totemgw/internal/billing"
	"totemgw/internal/printer"
	u "totemgw/internal/utils"
)

type fakeBilling struct {
	lookup    func(ctx context.Context, documento string) (*billing.PessoaRecord, error)
	validar   func(ctx context.Context, payload map[string]any) (*billing.PessoaRecord, error)
	faturas   func(ctx context.Context, cpfCnpj, contrato string) ([]json.RawMessage, error)
	boletoURL func(ctx context.Context, numeroFatura string) (string, error)
}

func (f *fakeBilling) ConsultarPessoaPorDocumento(ctx context.Context, documento string) (*billing.PessoaRecord, error) {
	if f.lookup == nil {
		return nil, nil
	}
	return f.lookup(ctx, documento)
}

func (f *fakeBilling) ValidarNomeBenef(ctx context.Context, payload map[string]any) (*billing.PessoaRecord, error) {
	if f.validar == nil {
		return nil, nil
	}
	return f.validar(ctx, payload)
}

func (f *fakeBilling) BuscarFaturas(ctx context.Context, cpfCnpj, contrato string) ([]json.RawMessage, error) {
	if f.faturas == nil {
		return []json.RawMessage{}, nil
	}
	return f.faturas(ctx, cpfCnpj, contrato)
}

func (f *fakeBilling) BuscarURLBoleto(ctx context.Context, numeroFatura string) (string, error) {
	if f.boletoURL == nil {
		return "", billing.ErrBoletoNotFound
	}
	return f.boletoURL(ctx, numeroFatura)
}

type fakePrinter struct {
	configured bool
	needsDoc   bool
	printFn    func(ctx context.Context, job printer.Job) (*printer.Result, error)
	stats      printer.Stats
}

func (f *fakePrinter) Configured() bool     { return f.configured }
func (f *fakePrinter) NeedsDocument() bool  { return f.needsDoc }
func (f *fakePrinter) Stats() printer.Stats { return f.stats }
func (f *fakePrinter) Print(ctx context.Context, job printer.Job) (*printer.Result, error) {
	if f.printFn == nil {
		return &printer.Result{Mode: "socket", Protocol: "raw"}, nil
	}
	return f.printFn(ctx, job)
}

type fakeMailer struct {
	configured bool
	sendFn     func(ctx context.Context, to, boletoURL, proxyLink, numeroFatura string) error
}

func (f *fakeMailer) Configured() bool { return f.configured }
func (f *fakeMailer) SendBoletoLink(ctx context.Context, to, boletoURL, proxyLink, numeroFatura string) error {
	if f.sendFn == nil {
		return nil
	}
	return f.sendFn(ctx, to, boletoURL, proxyLink, numeroFatura)
}

func testConfig() u.Config {
	var cfg u.Config
	cfg.Security.AllowedDocDomains = []string{"unimedpatos.com.br", "127.0.0.1"}
	cfg.Billing.TimeoutSecs = 2
	return cfg
}

// testApp wires the handlers into a Fiber app with the gateway's flat {error}
// body, without the auth and rate-limit middleware.
func testApp(svc *Service) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	app.Post("/api/identificacao/lookup", svc.HandleLookup)
	app.Get("/api/identificacao/lookup", svc.HandleLookupQuery)
	app.Post("/api/identificacao/validar", svc.HandleValidar)
	app.Post("/api/faturas", svc.HandleFaturas)
	app.Post("/api/boleto", svc.HandleBoletoURL)
	app.Post("/api/boleto/proxy", svc.HandleBoletoProxy)
	app.Post("/api/boleto/print", svc.HandlePrint)
	app.Post("/api/send-boleto", svc.HandleSendBoleto)
	app.Get("/api/pdf", svc.HandlePDF)
	app.Get("/api/pdf-download", svc.HandlePDFDownload)
	app.Get("/api/print/stats", svc.HandlePrintStats)
	return app
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}
