// Package serial implements the Serial Link Adapter (spec §6): the single
// owner of the radio's serial port, issuing outbound commands and
// classifying inbound textual records into CSI and chat lines.
package serial

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/term"

	"github.com/barnettlynn/plkg/internal/csiframe"
	"github.com/barnettlynn/plkg/internal/plkgerr"
)

// Adapter owns one serial port. Writes are serialized by writeMu so
// concurrent commands never interleave bytes on the wire (spec §5).
type Adapter struct {
	port    *term.Term
	writeMu sync.Mutex
}

// Open opens the named serial device at the given baud rate in raw mode.
func Open(portName string, baud int) (*Adapter, error) {
	t, err := term.Open(portName, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, plkgerr.New(plkgerr.KindSerialUnavailable, "serial.open", err)
	}
	return &Adapter{port: t}, nil
}

// Close releases the underlying serial port.
func (a *Adapter) Close() error {
	return a.port.Close()
}

// Write sends one newline-terminated command line, holding writeMu for the
// duration so two goroutines can never interleave partial writes.
func (a *Adapter) Write(line string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if _, err := a.port.Write([]byte(line + "\n")); err != nil {
		return plkgerr.New(plkgerr.KindSerialUnavailable, "serial.write", err)
	}
	return nil
}

// Restart issues a soft reset.
func (a *Adapter) Restart() error { return a.Write(RestartCmd()) }

// RadioInit configures the radio for a session.
func (a *Adapter) RadioInit(channel int, bandwidth, mac string) error {
	return a.Write(RadioInitCmd(channel, bandwidth, mac))
}

// Ping starts a periodic broadcast for the given duration in seconds.
// rateHz and dstMAC are optional; pass 0 and "" to omit them.
func (a *Adapter) Ping(seconds, rateHz int, dstMAC string) error {
	return a.Write(PingCmd(seconds, rateHz, dstMAC))
}

// Recv starts CSI capture for the given duration, filtered by source MAC.
func (a *Adapter) Recv(seconds int, srcMAC string) error {
	return a.Write(RecvCmd(seconds, srcMAC))
}

// MsgListen enables chat-record reception.
func (a *Adapter) MsgListen() error { return a.Write(MsgListenCmd()) }

// MsgSend transmits one chat payload to dstMAC.
func (a *Adapter) MsgSend(dstMAC, text string) error {
	return a.Write(MsgSendCmd(dstMAC, text))
}

// RestartCmd, RadioInitCmd, PingCmd, RecvCmd, MsgListenCmd and MsgSendCmd
// build the outbound command lines (spec §6) as pure functions so their
// format can be tested without a real serial port.

func RestartCmd() string { return "restart" }

func RadioInitCmd(channel int, bandwidth, mac string) string {
	return fmt.Sprintf("radio_init -c %d -b %s -m %s -s below --restart", channel, bandwidth, mac)
}

func PingCmd(seconds, rateHz int, dstMAC string) string {
	cmd := fmt.Sprintf("ping -t %d", seconds)
	if rateHz > 0 {
		cmd += fmt.Sprintf(" -r %d", rateHz)
	}
	if dstMAC != "" {
		cmd += fmt.Sprintf(" -m %s", dstMAC)
	}
	return cmd
}

func RecvCmd(seconds int, srcMAC string) string {
	return fmt.Sprintf("recv -t %d -m %s", seconds, srcMAC)
}

func MsgListenCmd() string { return "msg_listen" }

func MsgSendCmd(dstMAC, text string) string {
	return fmt.Sprintf("msg_send -m %s %q", dstMAC, text)
}

// LineKind classifies one inbound textual record (spec §6).
type LineKind int

const (
	LineOther LineKind = iota
	LineCSI
	LineChat
)

var chatMarkers = []string{"MSG_RECV", "Chat", "MSG from"}

// Classify reports which kind of record line is.
func Classify(line string) LineKind {
	if csiframe.IsCSILine(line) {
		return LineCSI
	}
	for _, marker := range chatMarkers {
		if strings.Contains(line, marker) {
			return LineChat
		}
	}
	return LineOther
}

// Lines scans newline-terminated records from the port and delivers them on
// the returned channel until ctx is done or the port returns EOF/error. It
// is meant to run as the single listen task for this adapter (spec §5).
func (a *Adapter) Lines(ctx context.Context) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(a.port)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case out <- scanner.Text():
			}
		}
	}()
	return out
}
