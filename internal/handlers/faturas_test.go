package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"totemgw/internal/billing"
)

func TestHandleFaturas(t *testing.T) {
	svc := NewService(testConfig(), &fakeBilling{
		faturas: func(ctx context.Context, cpfCnpj, contrato string) ([]json.RawMessage, error) {
			assert.Equal(t, "01234567890", cpfCnpj)
			assert.Equal(t, "471234", contrato)
			return []json.RawMessage{
				json.RawMessage(`{"numero_fatura":1001}`),
				json.RawMessage(`{"numero_fatura":1002}`),
			}, nil
		},
	}, nil, &fakePrinter{}, &fakeMailer{})
	app := testApp(svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/faturas", map[string]string{
		"cpfCnpj":  "01234567890",
		"contrato": "471234",
	}))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	content, ok := body["content"].([]any)
	assert.True(t, ok)
	assert.Len(t, content, 2)
}

func TestHandleFaturas_MissingFields(t *testing.T) {
	svc := NewService(testConfig(), &fakeBilling{}, nil, &fakePrinter{}, &fakeMailer{})
	app := testApp(svc)

	for _, payload := range []map[string]string{
		{},
		{"cpfCnpj": "01234567890"},
		{"contrato": "471234"},
	} {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/faturas", payload))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.NotEmpty(t, body["error"])
	}
}

func TestHandleFaturas_EmptyListKeepsShape(t *testing.T) {
	svc := NewService(testConfig(), &fakeBilling{}, nil, &fakePrinter{}, &fakeMailer{})
	app := testApp(svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/faturas", map[string]string{
		"cpfCnpj":  "01234567890",
		"contrato": "471234",
	}))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	content, ok := body["content"].([]any)
	assert.True(t, ok, "empty result must still be a JSON array")
	assert.Empty(t, content)
}

func TestHandleFaturas_UpstreamError(t *testing.T) {
	svc := NewService(testConfig(), &fakeBilling{
		faturas: func(ctx context.Context, cpfCnpj, contrato string) ([]json.RawMessage, error) {
			return nil, &billing.AuthError{Status: 401, Body: "invalid_client"}
		},
	}, nil, &fakePrinter{}, &fakeMailer{})
	app := testApp(svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/faturas", map[string]string{
		"cpfCnpj":  "01234567890",
		"contrato": "471234",
	}))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
