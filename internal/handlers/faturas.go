package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	u "totemgw/internal/utils"
)

// HandleFaturas lists the customer's open invoices. The upstream entries pass
// through untouched.
func (svc *Service) HandleFaturas(c *fiber.Ctx) error {
	started := time.Now()

	var body struct {
		CpfCnpj  string `json:"cpfCnpj"`
		Contrato string `json:"contrato"`
	}
	_ = c.BodyParser(&body)
	if body.CpfCnpj == "" || body.Contrato == "" {
		return fiber.NewError(fiber.StatusBadRequest, "cpfCnpj e contrato são obrigatórios")
	}

	content, err := svc.Billing.BuscarFaturas(c.Context(), body.CpfCnpj, body.Contrato)
	if err != nil {
		u.Error("Busca de faturas falhou", "error", err.Error())
		return fiber.NewError(upstreamStatus(err), err.Error())
	}

	u.Info("/api/faturas", "itens", len(content), "duration", time.Since(started).String())
	return c.JSON(fiber.Map{"content": content})
}
