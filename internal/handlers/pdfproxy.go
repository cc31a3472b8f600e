package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	u "totemgw/internal/utils"
)

// fetchedDoc is one proxied upstream document.
type fetchedDoc struct {
	ContentType string
	Data        []byte
}

var errUpstreamFetch = errors.New("falha ao buscar documento")

// boletoFileName derives a download filename from the URL's last path segment.
func boletoFileName(raw string) string {
	name := "boleto.pdf"
	if parsed, err := neturl.Parse(raw); err == nil {
		segments := strings.Split(parsed.Path, "/")
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] != "" {
				name = segments[i]
				break
			}
		}
	}
	return u.SafeFilename(name)
}

func boletoCacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "boletocache:" + hex.EncodeToString(sum[:])
}

// getCachedDoc attempts to serve the document bytes from Redis.
func (svc *Service) getCachedDoc(ctx context.Context, key string) *fetchedDoc {
	if svc.Redis == nil || !svc.Config.Cache.BoletoCacheEnabled {
		return nil
	}
	ctxRedis, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	cached, err := svc.Redis.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil
	}
	u.Info("Boleto cache hit", "key", key)
	return &fetchedDoc{ContentType: "application/pdf", Data: cached}
}

func (svc *Service) setCachedDoc(ctx context.Context, key string, data []byte) {
	if svc.Redis == nil || !svc.Config.Cache.BoletoCacheEnabled {
		return
	}
	ctxRedis, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	ttl := svc.Config.Cache.BoletoCacheTTL
	if ttl <= 0 {
		ttl = 1 * time.Minute
	}
	if err := svc.Redis.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}

// fetchDoc retrieves the document behind an already allow-listed URL, serving
// and feeding the Redis byte cache. A non-200 upstream answer is relayed as a
// fiber error with the same status.
func (svc *Service) fetchDoc(ctx context.Context, url string) (*fetchedDoc, error) {
	key := boletoCacheKey(url)
	if doc := svc.getCachedDoc(ctx, key); doc != nil {
		return doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Join(errUpstreamFetch, err)
	}
	resp, err := svc.fetch.Do(req)
	if err != nil {
		return nil, errors.Join(errUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fiber.NewError(resp.StatusCode, "falha ao buscar documento")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(errUpstreamFetch, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	svc.setCachedDoc(ctx, key, data)
	return &fetchedDoc{ContentType: contentType, Data: data}, nil
}

func (svc *Service) requireAllowedURL(url string) error {
	if url == "" || !u.IsAllowedDocURL(url, svc.Config.Security.AllowedDocDomains) {
		return fiber.NewError(fiber.StatusBadRequest, "URL inválida ou não permitida.")
	}
	return nil
}

func (svc *Service) frameAncestors() string {
	list := svc.Config.Security.FrameAncestors
	if len(list) == 0 {
		return "frame-ancestors *"
	}
	return "frame-ancestors " + strings.Join(list, " ")
}

func (svc *Service) serveDoc(c *fiber.Ctx, url string, inline bool) error {
	if err := svc.requireAllowedURL(url); err != nil {
		return err
	}

	doc, err := svc.fetchDoc(c.Context(), url)
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe
		}
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	fileName := boletoFileName(url)
	c.Set(fiber.HeaderContentType, doc.ContentType)
	if inline {
		c.Set(fiber.HeaderContentDisposition, `inline; filename="`+fileName+`"`)
		c.Set(fiber.HeaderCacheControl, "private, max-age=300")
		c.Set(fiber.HeaderContentSecurityPolicy, svc.frameAncestors())
	} else {
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+fileName+`"`)
		c.Set(fiber.HeaderCacheControl, "no-store")
	}
	return c.Send(doc.Data)
}

// HandlePDF proxies an allow-listed document for inline viewing (iframe).
func (svc *Service) HandlePDF(c *fiber.Ctx) error {
	return svc.serveDoc(c, c.Query("url"), true)
}

// HandlePDFDownload proxies an allow-listed document as a forced download.
func (svc *Service) HandlePDFDownload(c *fiber.Ctx) error {
	return svc.serveDoc(c, c.Query("url"), false)
}

// HandleBoletoProxy is the POST variant the kiosk uses to stream a boleto.
func (svc *Service) HandleBoletoProxy(c *fiber.Ctx) error {
	var body struct {
		URL string `json:"url"`
	}
	_ = c.BodyParser(&body)
	return svc.serveDoc(c, body.URL, true)
}
