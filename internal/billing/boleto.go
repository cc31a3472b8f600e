package billing

import (
	"context"
	"errors"
	"strconv"
)

// BuscarURLBoleto resolves an invoice number to its boleto PDF URL. The
// upstream procedure wants the invoice number as a JSON number.
func (c *Client) BuscarURLBoleto(ctx context.Context, numeroFatura string) (string, error) {
	n, err := strconv.ParseInt(numeroFatura, 10, 64)
	if err != nil {
		return "", errors.Join(ErrBoletoNotFound, err)
	}

	payload := map[string]int64{"numeroFatura": n}
	var env contentEnvelope
	if err := c.postJSON(ctx, "buscar boleto", boletoPath, payload, &env); err != nil {
		return "", err
	}
	if len(env.Content) == 0 {
		return "", ErrBoletoNotFound
	}
	url := firstString(env.Content[0], "url")
	if url == "" {
		return "", ErrBoletoNotFound
	}
	return url, nil
}
