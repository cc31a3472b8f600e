package handlers

import (
	"errors"
	neturl "net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"totemgw/internal/billing"
	"totemgw/internal/printer"
	u "totemgw/internal/utils"
)

// HandleBoletoURL resolves an invoice number to its boleto PDF URL. An
// unresolvable invoice answers {url: null}, matching what the kiosk expects.
func (svc *Service) HandleBoletoURL(c *fiber.Ctx) error {
	started := time.Now()

	var body struct {
		NumeroFatura string `json:"numeroFatura"`
	}
	_ = c.BodyParser(&body)
	if body.NumeroFatura == "" {
		return fiber.NewError(fiber.StatusBadRequest, "numeroFatura é obrigatório")
	}

	url, err := svc.Billing.BuscarURLBoleto(c.Context(), body.NumeroFatura)
	if err != nil && !errors.Is(err, billing.ErrBoletoNotFound) {
		return fiber.NewError(upstreamStatus(err), err.Error())
	}

	status := "OK"
	if url == "" {
		status = "NOK"
	}
	u.Info("/api/boleto", "status", status, "duration", time.Since(started).String())

	if url == "" {
		return c.JSON(fiber.Map{"url": nil})
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleSendBoleto mails the boleto link (direct plus the gateway proxy link)
// to the customer.
func (svc *Service) HandleSendBoleto(c *fiber.Ctx) error {
	var body struct {
		Email        string `json:"email"`
		URL          string `json:"url"`
		NumeroFatura string `json:"numeroFatura"`
	}
	_ = c.BodyParser(&body)
	if body.Email == "" || body.URL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email e url são obrigatórios")
	}
	if !svc.Mailer.Configured() {
		return fiber.NewError(fiber.StatusInternalServerError, "SMTP não configurado no servidor.")
	}

	proxyLink := c.Protocol() + "://" + c.Hostname() + "/api/pdf?url=" + neturl.QueryEscape(body.URL)
	if err := svc.Mailer.SendBoletoLink(c.Context(), body.Email, body.URL, proxyLink, body.NumeroFatura); err != nil {
		u.Error("Envio de boleto por e-mail falhou", "to", body.Email, "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandlePrint resolves the boleto PDF and hands it to the print dispatcher.
func (svc *Service) HandlePrint(c *fiber.Ctx) error {
	var body struct {
		NumeroFatura string `json:"numeroFatura"`
		URL          string `json:"url"`
	}
	_ = c.BodyParser(&body)
	if body.NumeroFatura == "" && body.URL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "numeroFatura ou url é obrigatório")
	}
	if !svc.Printer.Configured() {
		return fiber.NewError(fiber.StatusInternalServerError, printer.ErrNotConfigured.Error())
	}

	url := body.URL
	if url == "" {
		resolved, err := svc.Billing.BuscarURLBoleto(c.Context(), body.NumeroFatura)
		if errors.Is(err, billing.ErrBoletoNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "boleto não encontrado para a fatura")
		}
		if err != nil {
			return fiber.NewError(upstreamStatus(err), err.Error())
		}
		url = resolved
	}
	if err := svc.requireAllowedURL(url); err != nil {
		return err
	}

	job := printer.Job{
		NumeroFatura: body.NumeroFatura,
		URL:          url,
		FileName:     boletoFileName(url),
	}
	if svc.Printer.NeedsDocument() {
		doc, err := svc.fetchDoc(c.Context(), url)
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		job.Data = doc.Data
	}

	res, err := svc.Printer.Print(c.Context(), job)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	out := fiber.Map{"ok": true, "mode": res.Mode}
	if res.Printer != "" {
		out["printer"] = res.Printer
	}
	if res.Protocol != "" {
		out["protocol"] = res.Protocol
	}
	if len(res.Data) > 0 {
		out["data"] = res.Data
	}
	return c.JSON(out)
}

// HandlePrintStats exposes the dispatcher's aggregate counters, mainly for the
// kiosk health dashboard.
func (svc *Service) HandlePrintStats(c *fiber.Ctx) error {
	stats := svc.Printer.Stats()
	return c.JSON(fiber.Map{
		"enabled":       svc.Printer.Configured(),
		"total":         stats.Total,
		"ok":            stats.OK,
		"errors":        stats.Errors,
		"last_error_at": stats.LastErrorAt,
	})
}
