package billing

import (
	"context"
	"encoding/json"

	u "totemgw/internal/utils"
)

// FaturasPayload is the outbound shape for the open-invoice procedure. PF
// customers are identified by contract alone; PJ customers send both fields.
type FaturasPayload struct {
	CpfCnpj  string `json:"cpfCnpj,omitempty"`
	Contrato string `json:"contrato"`
}

// BuildFaturasPayload derives the upstream payload from the document length:
// more than 11 digits means a CNPJ (legal entity).
func BuildFaturasPayload(cpfCnpj, contrato string) FaturasPayload {
	cpfCnpjDigits := u.OnlyDigits(cpfCnpj)
	contratoDigits := u.OnlyDigits(contrato)
	if len(cpfCnpjDigits) > 11 {
		return FaturasPayload{CpfCnpj: cpfCnpjDigits, Contrato: contratoDigits}
	}
	return FaturasPayload{Contrato: contratoDigits}
}

// BuscarFaturas returns the upstream open-invoice list untouched. The entries
// are opaque to the gateway; the kiosk UI renders them as-is.
func (c *Client) BuscarFaturas(ctx context.Context, cpfCnpj, contrato string) ([]json.RawMessage, error) {
	payload := BuildFaturasPayload(cpfCnpj, contrato)

	var env struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := c.postJSON(ctx, "buscar faturas", faturasPath, payload, &env); err != nil {
		return nil, err
	}
	if env.Content == nil {
		return []json.RawMessage{}, nil
	}
	return env.Content, nil
}
