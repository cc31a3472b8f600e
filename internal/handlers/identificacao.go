package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"totemgw/internal/billing"
)

// pessoaView is the canonical lookup response: the full normalized record plus
// the two derived fields the kiosk UI branches on. tipoPessoa is PF/PJ;
// exige names the confirmation field the UI must ask for next.
type pessoaView struct {
	billing.PessoaRecord
	Documento  string `json:"documento,omitempty"`
	TipoPessoa string `json:"tipoPessoa"`
	Exige      string `json:"exige"`
}

func viewFromPessoa(rec *billing.PessoaRecord, documento string) pessoaView {
	tipo := "PF"
	exige := "dt_nasc"
	if rec.TipPessoa == "J" {
		tipo = "PJ"
		exige = "contrato"
	}
	if documento == "" {
		documento = rec.DocPessoaSemFormatacao
	}
	return pessoaView{
		PessoaRecord: *rec,
		Documento:    documento,
		TipoPessoa:   tipo,
		Exige:        exige,
	}
}

func upstreamStatus(err error) int {
	var ae *billing.AuthError
	var ue *billing.UpstreamError
	if errors.As(err, &ae) || errors.As(err, &ue) {
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func (svc *Service) doLookup(c *fiber.Ctx, documento string) error {
	if documento == "" {
		return fiber.NewError(fiber.StatusBadRequest, "documento obrigatório")
	}

	pessoa, err := svc.Billing.ConsultarPessoaPorDocumento(c.Context(), documento)
	if err != nil {
		return fiber.NewError(upstreamStatus(err), err.Error())
	}
	if pessoa == nil {
		return fiber.NewError(fiber.StatusNotFound, "Pessoa não encontrada")
	}
	return c.JSON(viewFromPessoa(pessoa, documento))
}

// HandleLookup resolves a CPF/CNPJ into the person record (POST body).
func (svc *Service) HandleLookup(c *fiber.Ctx) error {
	var body struct {
		Documento string `json:"documento"`
	}
	_ = c.BodyParser(&body)
	return svc.doLookup(c, body.Documento)
}

// HandleLookupQuery is the GET variant taking ?documento=.
func (svc *Service) HandleLookupQuery(c *fiber.Ctx) error {
	return svc.doLookup(c, c.Query("documento"))
}

// HandleValidar forwards a free-form payload to the beneficiary validation
// procedure.
func (svc *Service) HandleValidar(c *fiber.Ctx) error {
	payload := map[string]any{}
	_ = c.BodyParser(&payload)

	pessoa, err := svc.Billing.ValidarNomeBenef(c.Context(), payload)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if pessoa == nil {
		return fiber.NewError(fiber.StatusNotFound, "Pessoa não encontrada")
	}
	documento, _ := payload["documento"].(string)
	return c.JSON(viewFromPessoa(pessoa, documento))
}
