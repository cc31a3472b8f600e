package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	u "totemgw/internal/utils"
)

// ErrNotConfigured means neither a print service URL nor a printer host is
// configured; /api/boleto/print cannot work on this deployment.
var ErrNotConfigured = errors.New("impressão não configurada no servidor")

// Job is one print request. It lives for the duration of the dispatch and is
// never persisted; only the aggregate counters survive it.
type Job struct {
	NumeroFatura string
	URL          string
	FileName     string
	Data         []byte
	Queue        string
}

// Result reports a successful dispatch back to the kiosk.
type Result struct {
	Mode     string          `json:"mode"`
	Printer  string          `json:"printer,omitempty"`
	Protocol string          `json:"protocol,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Stats are best-effort aggregate counters across all print jobs.
type Stats struct {
	Total       uint64    `json:"total"`
	OK          uint64    `json:"ok"`
	Errors      uint64    `json:"errors"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// Dispatcher routes print jobs to the configured backend: an external print
// microservice, a raw 9100 socket, an LPR daemon or an IPP printer.
type Dispatcher struct {
	serviceURL string
	host       string
	port       int
	queue      string
	protocol   string
	timeout    time.Duration

	http *http.Client
	dial func(ctx context.Context, network, addr string) (net.Conn, error)

	mu    sync.Mutex
	stats Stats
}

// New builds a dispatcher from the gateway configuration.
func New(cfg u.Config) *Dispatcher {
	protocol := strings.ToLower(cfg.Print.Protocol)
	if protocol == "" {
		protocol = "raw"
	}
	port := cfg.Print.Port
	if port == 0 {
		port = u.DefaultPrintPort(protocol)
	}
	timeout := time.Duration(cfg.Print.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Dispatcher{
		serviceURL: cfg.Print.ServiceURL,
		host:       cfg.Print.Host,
		port:       port,
		queue:      cfg.Print.Queue,
		protocol:   protocol,
		timeout:    timeout,
		http:       &http.Client{Timeout: timeout},
	}
	dialer := &net.Dialer{Timeout: timeout}
	d.dial = dialer.DialContext
	return d
}

// Configured reports whether any print backend is set up.
func (d *Dispatcher) Configured() bool {
	return d.serviceURL != "" || d.host != ""
}

// NeedsDocument reports whether Print requires the PDF bytes in Job.Data. The
// external service fetches the document itself; the socket protocols do not.
func (d *Dispatcher) NeedsDocument() bool {
	return d.serviceURL == ""
}

// Stats returns a snapshot of the aggregate counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) record(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Total++
	if err != nil {
		d.stats.Errors++
		d.stats.LastErrorAt = time.Now()
		return
	}
	d.stats.OK++
}

// Print dispatches one job and updates the counters. No retries: a failed
// attempt is surfaced to the caller, who may re-submit.
func (d *Dispatcher) Print(ctx context.Context, job Job) (*Result, error) {
	started := time.Now()

	res, err := d.dispatch(ctx, job)
	d.record(err)

	duration := time.Since(started).String()
	if err != nil {
		u.Error("Print job failed",
			"status", "error",
			"mode", d.mode(),
			"duration", duration,
			"invoice", job.NumeroFatura,
			"url", job.URL,
			"printer", d.address(),
			"protocol", d.protocol,
			"error", err.Error(),
		)
		return nil, err
	}

	u.Info("Print job dispatched",
		"status", "ok",
		"mode", d.mode(),
		"duration", duration,
		"invoice", job.NumeroFatura,
		"url", job.URL,
		"printer", d.address(),
		"protocol", d.protocol,
	)
	return res, nil
}

func (d *Dispatcher) mode() string {
	if d.serviceURL != "" {
		return "service"
	}
	if d.host != "" {
		return "socket"
	}
	return "none"
}

func (d *Dispatcher) address() string {
	if d.host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", d.host, d.port)
}

func (d *Dispatcher) dispatch(ctx context.Context, job Job) (*Result, error) {
	switch {
	case d.serviceURL != "":
		return d.sendToService(ctx, job)
	case d.host != "":
		switch d.protocol {
		case "lpr":
			return d.sendViaLpr(ctx, job)
		case "ipp":
			return d.sendViaIpp(ctx, job)
		default:
			return d.sendViaRawSocket(ctx, job)
		}
	default:
		return nil, ErrNotConfigured
	}
}

// sendToService forwards the job to the external print microservice and relays
// its JSON response.
func (d *Dispatcher) sendToService(ctx context.Context, job Job) (*Result, error) {
	payload, err := json.Marshal(map[string]string{
		"numeroFatura": job.NumeroFatura,
		"url":          job.URL,
		"fileName":     job.FileName,
		"queue":        queueOr(job.Queue, d.queue),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.serviceURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("print service: %d :: %s", resp.StatusCode, string(body))
	}

	data := json.RawMessage(body)
	if !json.Valid(body) {
		data, _ = json.Marshal(string(body))
	}
	return &Result{Mode: "service", Data: data}, nil
}

func queueOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
