package printer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// RFC 1179 command bytes.
const (
	lprReceiveJob         = 0x02
	lprReceiveControlFile = 0x02
	lprReceiveDataFile    = 0x03
)

var lprJobCounter uint32

func nextLprJobNumber() int {
	// Job numbers cycle 0-999 per RFC 1179.
	return int(atomic.AddUint32(&lprJobCounter, 1) % 1000)
}

// sendViaLpr submits the job through the line-printer daemon protocol.
func (d *Dispatcher) sendViaLpr(ctx context.Context, job Job) (*Result, error) {
	conn, err := d.dial(ctx, "tcp", d.address())
	if err != nil {
		return nil, fmt.Errorf("lpr: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		return nil, fmt.Errorf("lpr: %w", err)
	}

	queue := queueOr(job.Queue, d.queue)
	if queue == "" {
		queue = "lp"
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "totemgw"
	}

	if err := sendLprJob(conn, queue, hostname, "totemgw", job.FileName, job.Data, nextLprJobNumber()); err != nil {
		return nil, err
	}
	return &Result{Mode: "socket", Printer: d.address(), Protocol: "lpr"}, nil
}

// sendLprJob runs the receive-job handshake over an established connection.
// Every write is answered by a single ACK byte; anything non-zero aborts the
// exchange before further writes.
func sendLprJob(conn net.Conn, queue, hostname, user, jobName string, data []byte, jobNum int) error {
	suffix := fmt.Sprintf("%03d%s", jobNum, hostname)
	controlFileName := "cfA" + suffix
	dataFileName := "dfA" + suffix
	if jobName == "" {
		jobName = dataFileName
	}

	// Receive a printer job.
	if err := lprCommand(conn, []byte{lprReceiveJob}, []byte(queue+"\n")); err != nil {
		return err
	}

	control := "H" + hostname + "\n" +
		"P" + user + "\n" +
		"J" + jobName + "\n" +
		"l" + dataFileName + "\n" +
		"U" + dataFileName + "\n" +
		"N" + jobName + "\n"

	// Control file: header, then content terminated by a NUL.
	header := []byte(strconv.Itoa(len(control)) + " " + controlFileName + "\n")
	if err := lprCommand(conn, []byte{lprReceiveControlFile}, header); err != nil {
		return err
	}
	if err := lprCommand(conn, []byte(control), []byte{0x00}); err != nil {
		return err
	}

	// Data file: header, then the document terminated by a NUL.
	header = []byte(strconv.Itoa(len(data)) + " " + dataFileName + "\n")
	if err := lprCommand(conn, []byte{lprReceiveDataFile}, header); err != nil {
		return err
	}
	if err := lprCommand(conn, data, []byte{0x00}); err != nil {
		return err
	}
	return nil
}

// lprCommand writes the concatenated chunks as one command and waits for the
// daemon's one-byte ACK.
func lprCommand(conn net.Conn, chunks ...[]byte) error {
	var buf []byte
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("lpr: write: %w", err)
	}
	ack := make([]byte, 1)
	if _, err := io.ReadFull(conn, ack); err != nil {
		return fmt.Errorf("lpr: ack: %w", err)
	}
	if ack[0] != 0 {
		return fmt.Errorf("lpr: printer refused command (ack=%d)", ack[0])
	}
	return nil
}
