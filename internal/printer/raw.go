package printer

import (
	"context"
	"fmt"
	"time"
)

// sendViaRawSocket writes the whole PDF to the printer's jetdirect port and
// closes the connection. Most thermal and laser printers accept PDF or let the
// firmware sort it out on port 9100.
func (d *Dispatcher) sendViaRawSocket(ctx context.Context, job Job) (*Result, error) {
	conn, err := d.dial(ctx, "tcp", d.address())
	if err != nil {
		return nil, fmt.Errorf("raw: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		return nil, fmt.Errorf("raw: %w", err)
	}
	if _, err := conn.Write(job.Data); err != nil {
		return nil, fmt.Errorf("raw: %w", err)
	}
	return &Result{Mode: "socket", Printer: d.address(), Protocol: "raw"}, nil
}
