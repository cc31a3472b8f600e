package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"totemgw/internal/billing"
	"totemgw/internal/printer"
	u "totemgw/internal/utils"
)

// BillingAPI is the slice of the billing client the handlers need. Kept as an
// interface so handler tests can run against a fake upstream.
type BillingAPI interface {
	ConsultarPessoaPorDocumento(ctx context.Context, documento string) (*billing.PessoaRecord, error)
	ValidarNomeBenef(ctx context.Context, payload map[string]any) (*billing.PessoaRecord, error)
	BuscarFaturas(ctx context.Context, cpfCnpj, contrato string) ([]json.RawMessage, error)
	BuscarURLBoleto(ctx context.Context, numeroFatura string) (string, error)
}

// PrintDispatcher abstracts the print backend for the same reason.
type PrintDispatcher interface {
	Configured() bool
	NeedsDocument() bool
	Print(ctx context.Context, job printer.Job) (*printer.Result, error)
	Stats() printer.Stats
}

// MailSender abstracts SMTP delivery.
type MailSender interface {
	Configured() bool
	SendBoletoLink(ctx context.Context, to, boletoURL, proxyLink, numeroFatura string) error
}

// Service bundles configuration and dependencies for the gateway handlers,
// one shared instance per process.
type Service struct {
	Config  *u.Config
	Billing BillingAPI
	Redis   *redis.Client
	Printer PrintDispatcher
	Mailer  MailSender

	fetch *http.Client
}

// NewService creates the handler service.
func NewService(cfg u.Config, api BillingAPI, rdb *redis.Client, pd PrintDispatcher, mail MailSender) *Service {
	timeout := time.Duration(cfg.Billing.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		Config:  &cfg,
		Billing: api,
		Redis:   rdb,
		Printer: pd,
		Mailer:  mail,
		fetch:   &http.Client{Timeout: timeout},
	}
}
