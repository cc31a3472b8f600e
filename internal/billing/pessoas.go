package billing

import (
	"context"
	"fmt"
	"strings"

	u "totemgw/internal/utils"
)

// PessoaRecord is the canonical normalized person record the kiosk UI works
// with. Upstream responses use several alias keys per logical field; the
// mapping below folds them into this one shape.
type PessoaRecord struct {
	TipPessoa              string `json:"tip_pessoa"`
	NomePessoa             string `json:"nome_pessoa,omitempty"`
	Contrato               string `json:"contrato,omitempty"`
	CodPessoa              string `json:"cod_pessoa,omitempty"`
	DtNasc                 string `json:"dt_nasc,omitempty"`
	Carteirinha            string `json:"carteirinha,omitempty"`
	DocPessoaSemFormatacao string `json:"doc_pessoa_s_formatacao,omitempty"`
	DocPessoaFormatado     string `json:"doc_pessoa_formatado,omitempty"`
}

// Ordered alias lists, first present key wins. Keep these declarative; the
// upstream procedure has shipped both spellings over time.
var (
	aliasNome      = []string{"nome", "nome_pessoa"}
	aliasContrato  = []string{"registro_ans", "contrato"}
	aliasCodPessoa = []string{"codigo_pessoa", "cod_pessoa"}
	aliasDtNasc    = []string{"data_nascimento", "dt_nasc"}
	aliasTipo      = []string{"tipo_plano", "tip_pessoa"}
)

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case float64:
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", s), "0"), ".")
		}
	}
	return ""
}

// toISODate flips dd/mm/yyyy into yyyy-mm-dd. Anything else passes through.
func toISODate(s string) string {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return s
	}
	dd, mm, yyyy := parts[0], parts[1], parts[2]
	for len(yyyy) < 4 {
		yyyy = "0" + yyyy
	}
	if len(mm) < 2 {
		mm = "0" + mm
	}
	if len(dd) < 2 {
		dd = "0" + dd
	}
	return yyyy + "-" + mm + "-" + dd
}

func tipoPessoaFrom(s string) string {
	if strings.EqualFold(s, "PJ") {
		return "J"
	}
	return "F"
}

// mockPessoa synthesizes a deterministic record from the document digits so
// the kiosk flow stays testable with the upstream API offline.
func mockPessoa(documento string) *PessoaRecord {
	digits := u.OnlyDigits(documento)
	if digits == "" {
		digits = "00000000000"
	}
	isPJ := len(digits) > 11
	nomeBase := "Pessoa"
	tipo := "F"
	if isPJ {
		nomeBase = "Empresa"
		tipo = "J"
	}
	rec := &PessoaRecord{
		TipPessoa:              tipo,
		NomePessoa:             nomeBase + " " + tail(digits, 4),
		Contrato:               "CT" + tailOr(digits, 6, "000001"),
		CodPessoa:              tailOr(digits, 6, "123456"),
		Carteirinha:            "M" + tailOr(digits, 8, "00000000"),
		DocPessoaSemFormatacao: digits,
		DocPessoaFormatado:     documento,
	}
	if !isPJ {
		rec.DtNasc = "1990-01-01"
	}
	return rec
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func tailOr(s string, n int, fallback string) string {
	if t := tail(s, n); t != "" {
		return t
	}
	return fallback
}

type contentEnvelope struct {
	Content []map[string]any `json:"content"`
}

func normalizePessoa(item map[string]any, documento, digits string) *PessoaRecord {
	doc := u.OnlyDigits(firstString(item, "cpf"))
	if doc == "" {
		doc = digits
	}
	formatted := firstString(item, "cpf")
	if formatted == "" {
		formatted = documento
	}
	return &PessoaRecord{
		TipPessoa:              tipoPessoaFrom(firstString(item, aliasTipo...)),
		NomePessoa:             firstString(item, aliasNome...),
		Contrato:               strings.TrimSpace(firstString(item, aliasContrato...)),
		CodPessoa:              firstString(item, aliasCodPessoa...),
		DtNasc:                 toISODate(firstString(item, aliasDtNasc...)),
		Carteirinha:            firstString(item, "carteirinha"),
		DocPessoaSemFormatacao: doc,
		DocPessoaFormatado:     formatted,
	}
}

// ConsultarPessoaPorDocumento looks the document up on the beneficiary
// validation procedure. Returns nil when the upstream has no record. When the
// remote call fails and mock mode is on, a deterministic pseudo-record is
// returned instead of the error.
func (c *Client) ConsultarPessoaPorDocumento(ctx context.Context, documento string) (*PessoaRecord, error) {
	rec, err := c.consultarRemoto(ctx, documento)
	if err != nil && c.mockPessoas {
		u.Warn("Gerando pessoa fictícia (mock)", "documento", documento, "error", err.Error())
		return mockPessoa(documento), nil
	}
	return rec, err
}

func (c *Client) consultarRemoto(ctx context.Context, documento string) (*PessoaRecord, error) {
	digits := u.OnlyDigits(documento)
	// The document stays a string so leading zeros survive.
	payload := map[string]string{c.docField: digits}

	var env contentEnvelope
	if err := c.postJSON(ctx, "consultar pessoa", pessoasPath, payload, &env); err != nil {
		return nil, err
	}
	if len(env.Content) == 0 {
		return nil, nil
	}

	// Pick the entry matching the requested document to avoid grabbing the
	// wrong record; fall back to the first.
	selected := env.Content[0]
	for _, item := range env.Content {
		if u.OnlyDigits(firstString(item, "cpf")) == digits {
			selected = item
			break
		}
	}
	return normalizePessoa(selected, documento, digits), nil
}

// ValidarNomeBenef forwards a free-form payload to the beneficiary validation
// procedure and returns the first normalized entry, or nil when there is none.
func (c *Client) ValidarNomeBenef(ctx context.Context, payload map[string]any) (*PessoaRecord, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	var env contentEnvelope
	if err := c.postJSON(ctx, "validar beneficiário", pessoasPath, payload, &env); err != nil {
		return nil, err
	}
	if len(env.Content) == 0 {
		return nil, nil
	}
	documento, _ := payload["documento"].(string)
	return normalizePessoa(env.Content[0], documento, u.OnlyDigits(documento)), nil
}
