package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrPessoaNotFound means the upstream answered but had no matching record.
	ErrPessoaNotFound = errors.New("pessoa não encontrada")
	// ErrBoletoNotFound means no boleto URL could be resolved for the invoice.
	ErrBoletoNotFound = errors.New("boleto não encontrado")
)

// AuthError is returned when the OAuth token endpoint rejects the
// client-credentials grant.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("falha ao autenticar (token): %s", e.Body)
}

// UpstreamError is returned when a billing API call comes back non-2xx or the
// transport fails. Routes map it to 502.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %d :: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Body)
}
