package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "https://api.unimedpatos.sgusuite.com.br", cfg.Billing.BaseURL)
	assert.Equal(t, "documento", cfg.Billing.PessoasDocField)
	assert.Contains(t, cfg.Security.AllowedDocDomains, "unimedpatos.com.br")
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.TLSRejectUnauthorized)
	assert.Equal(t, "raw", cfg.Print.Protocol)
}

func TestLoadFrom_Valid(t *testing.T) {
	p := writeConfig(t, `server:
  port: "9000"
billing:
  base_url: "https://billing.test"
  client_id: "id"
print:
  host: "10.0.0.5"
  protocol: "lpr"
`)
	cfg := LoadFrom(p)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "https://billing.test", cfg.Billing.BaseURL)
	assert.Equal(t, "lpr", cfg.Print.Protocol)
	assert.Equal(t, "10.0.0.5", cfg.Print.Host)
}

func TestLoadFrom_PanicsOnInvalidYAML(t *testing.T) {
	p := writeConfig(t, "server: [not a mapping")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = LoadFrom(p)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	p := writeConfig(t, `billing:
  client_id: "from-yaml"
`)
	t.Setenv("CONFIG_PATH", p)
	t.Setenv("CLIENT_ID", "from-env")
	t.Setenv("CLIENT_SECRET", "s3cret")
	t.Setenv("PORT", "8081")
	t.Setenv("MOCK_PESSOAS", "sim")
	t.Setenv("SMTP_TLS_REJECT_UNAUTHORIZED", "false")
	t.Setenv("PRINT_PROTOCOL", "ipp")
	t.Setenv("PRINT_PORT", "6310")
	t.Setenv("CORS_ORIGINS", "http://kiosk-1.local, http://kiosk-2.local")
	t.Setenv("FRAME_ANCESTORS", "http://a.local http://b.local http://a.local")

	cfg := LoadConfig()

	assert.Equal(t, "from-env", cfg.Billing.ClientID)
	assert.Equal(t, "s3cret", cfg.Billing.ClientSecret)
	assert.Equal(t, "8081", cfg.Server.Port)
	assert.True(t, cfg.Billing.MockPessoas)
	assert.False(t, cfg.SMTP.TLSRejectUnauthorized)
	assert.Equal(t, "ipp", cfg.Print.Protocol)
	assert.Equal(t, 6310, cfg.Print.Port)
	assert.Equal(t, []string{"http://kiosk-1.local", "http://kiosk-2.local"}, cfg.Security.CORSOrigins)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.Security.FrameAncestors)
}

func TestDefaultPrintPort(t *testing.T) {
	assert.Equal(t, 515, DefaultPrintPort("lpr"))
	assert.Equal(t, 631, DefaultPrintPort("ipp"))
	assert.Equal(t, 9100, DefaultPrintPort("raw"))
	assert.Equal(t, 9100, DefaultPrintPort(""))
}
