package printer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/OpenPrinting/goipp"
)

// sendViaIpp submits the job as an IPP Print-Job operation. The request is the
// encoded IPP message followed by the PDF document body.
func (d *Dispatcher) sendViaIpp(ctx context.Context, job Job) (*Result, error) {
	queue := queueOr(job.Queue, d.queue)
	if queue == "" {
		queue = "lp"
	}
	printerURI := fmt.Sprintf("ipp://%s:%d/printers/%s", d.host, d.port, queue)
	httpURL := fmt.Sprintf("http://%s:%d/printers/%s", d.host, d.port, queue)

	msg := buildPrintJobRequest(printerURI, "totemgw", job.FileName)
	payload, err := msg.EncodeBytes()
	if err != nil {
		return nil, fmt.Errorf("ipp: encode: %w", err)
	}

	body := io.MultiReader(bytes.NewReader(payload), bytes.NewReader(job.Data))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpURL, body)
	if err != nil {
		return nil, fmt.Errorf("ipp: %w", err)
	}
	req.Header.Set("Content-Type", "application/ipp")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipp: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ipp: http %d", resp.StatusCode)
	}

	var reply goipp.Message
	if err := reply.DecodeBytes(raw); err != nil {
		return nil, fmt.Errorf("ipp: decode response: %w", err)
	}
	if status := goipp.Status(reply.Code); status >= 0x100 {
		return nil, fmt.Errorf("ipp: printer returned %s", status)
	}
	return &Result{Mode: "socket", Printer: d.address(), Protocol: "ipp"}, nil
}

// buildPrintJobRequest assembles the Print-Job operation attributes.
func buildPrintJobRequest(printerURI, user, jobName string) *goipp.Message {
	if jobName == "" {
		jobName = "boleto.pdf"
	}
	msg := goipp.NewRequest(goipp.DefaultVersion, goipp.OpPrintJob, 1)
	msg.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	msg.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
	msg.Operation.Add(goipp.MakeAttribute("printer-uri", goipp.TagURI, goipp.String(printerURI)))
	msg.Operation.Add(goipp.MakeAttribute("requesting-user-name", goipp.TagName, goipp.String(user)))
	msg.Operation.Add(goipp.MakeAttribute("job-name", goipp.TagName, goipp.String(jobName)))
	msg.Operation.Add(goipp.MakeAttribute("document-format", goipp.TagMimeType, goipp.String("application/pdf")))
	return msg
}
