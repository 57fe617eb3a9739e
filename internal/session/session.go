// Package session implements the Session Orchestrator (spec §4.7): the
// sequential state machine driving one endpoint from raw CSI collection
// through a Final Key and the Secure Channel Test, plus the BER and
// alice/bob/eve reporting carried over from the original reference
// implementation's demo harness.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/barnettlynn/plkg/internal/bitstring"
	"github.com/barnettlynn/plkg/internal/cascade"
	"github.com/barnettlynn/plkg/internal/config"
	"github.com/barnettlynn/plkg/internal/csiagg"
	"github.com/barnettlynn/plkg/internal/csiframe"
	"github.com/barnettlynn/plkg/internal/persist"
	"github.com/barnettlynn/plkg/internal/plkgerr"
	"github.com/barnettlynn/plkg/internal/privacyamp"
	"github.com/barnettlynn/plkg/internal/pubchannel"
	"github.com/barnettlynn/plkg/internal/quantize"
	"github.com/barnettlynn/plkg/internal/securechan"
	"github.com/barnettlynn/plkg/internal/serial"
)

// Role names an endpoint using the reference implementation's
// alice/bob/eve convention: alice holds the Cascade initiator's reference
// key, bob is the noisy responder, eve is the passive eavesdropper.
type Role string

const (
	RoleAlice Role = "alice"
	RoleBob   Role = "bob"
	RoleEve   Role = "eve"
)

// State is one step of the orchestrator's sequential machine (spec §4.7).
type State string

const (
	StateSetup      State = "setup"
	StateCollectAB  State = "collect_A→B"
	StateCollectBA  State = "collect_B→A"
	StateQuantize   State = "quantize"
	StateReconcile  State = "reconcile"
	StateAmplify    State = "amplify"
	StateTest       State = "test"
	StateDone       State = "done"
)

// RadioSource is the subset of *internal/serial.Adapter the orchestrator
// needs; a fake satisfying it drives the state machine in tests without a
// real radio.
type RadioSource interface {
	Restart() error
	RadioInit(channel int, bandwidth, mac string) error
	Ping(seconds, rateHz int, dstMAC string) error
	Recv(seconds int, srcMAC string) error
	MsgListen() error
	MsgSend(dstMAC, text string) error
	Lines(ctx context.Context) <-chan string
}

var _ RadioSource = (*serial.Adapter)(nil)

// Result is everything the orchestrator produces, for reporting and exit
// code selection (spec §6).
type Result struct {
	FinalState    State
	RawKey        []byte
	ReconciledKey []byte
	FinalKey      [32]byte
	Corrections   cascade.Report
	SecureOutcome securechan.Outcome
	Err           error
}

// Orchestrator drives one endpoint through the full PLKG pipeline.
type Orchestrator struct {
	Role    Role
	Cfg     config.Config
	PeerMAC string

	Radio   RadioSource
	Agg     *csiagg.Aggregator
	Out     pubchannel.Publisher // where Cascade/Secure Channel Test messages go out
	Inbox   *pubchannel.Inbox
	Persist *persist.Writer
	Log     *log.Logger
}

// RadioPublisher adapts a RadioSource into a pubchannel.Publisher for
// production use: every Public Message is transmitted as one chat payload
// over the real radio link, to be recovered by the peer's own ingest loop.
type RadioPublisher struct {
	Radio   RadioSource
	PeerMAC string
}

func (p RadioPublisher) Publish(line string) {
	p.Radio.MsgSend(p.PeerMAC, line)
}

// New builds an Orchestrator with a fresh aggregator sized per Cfg.
func New(role Role, cfg config.Config, peerMAC string, radio RadioSource, out pubchannel.Publisher, inbox *pubchannel.Inbox, w *persist.Writer, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		Role:    role,
		Cfg:     cfg,
		PeerMAC: peerMAC,
		Radio:   radio,
		Agg:     csiagg.New(cfg.CSI.Window),
		Out:     out,
		Inbox:   inbox,
		Persist: w,
		Log:     logger,
	}
}

// Run drives the full state machine. It always returns a Result; on fatal
// error the machine jumps to StateDone with Err set (spec §4.7).
func (o *Orchestrator) Run(ctx context.Context) Result {
	res := Result{}

	lines := o.Radio.Lines(ctx)
	go o.ingestLoop(ctx, lines)

	if err := o.runSetup(); err != nil {
		return o.fail(res, err)
	}

	if err := o.runCollectPhase(ctx, StateCollectAB, o.Role == RoleAlice); err != nil {
		return o.fail(res, err)
	}
	if err := o.runCollectPhase(ctx, StateCollectBA, o.Role == RoleBob); err != nil {
		return o.fail(res, err)
	}

	mean, err := o.Agg.ChannelMean(o.Cfg.CSI.SubcarrierRanges)
	if err != nil {
		return o.fail(res, err)
	}

	raw, err := quantize.Quantize(mean, o.Cfg.CSI.KMain, o.Cfg.CSI.MNeighbors)
	if err != nil {
		return o.fail(res, err)
	}
	res.RawKey = raw
	nBits := 2 * o.Cfg.CSI.KMain
	bits := bitstring.Unpack(raw, nBits)

	report, err := o.runReconcile(ctx, bits)
	if err != nil {
		return o.fail(res, err)
	}
	res.Corrections = report
	res.ReconciledKey = bitstring.Pack(bits)

	res.FinalKey = privacyamp.Amplify(res.ReconciledKey)

	outcome, err := o.runSecureTest(ctx, res.FinalKey)
	if err != nil {
		return o.fail(res, err)
	}
	res.SecureOutcome = outcome
	res.FinalState = StateDone
	return res
}

func (o *Orchestrator) fail(res Result, err error) Result {
	res.FinalState = StateDone
	res.Err = err
	if o.Log != nil {
		o.Log.Error("session aborted", "role", o.Role, "error", err)
	}
	return res
}

func (o *Orchestrator) runSetup() error {
	if err := o.Radio.Restart(); err != nil {
		return err
	}
	if err := o.Radio.RadioInit(o.Cfg.Radio.Channel, o.Cfg.Radio.Bandwidth, o.Cfg.Radio.LocalMAC); err != nil {
		return err
	}
	return o.Radio.MsgListen()
}

// runCollectPhase runs one collect_* state for the configured phase
// duration: the broadcasting role pings, everyone else records CSI via the
// background ingest loop already draining Radio.Lines.
func (o *Orchestrator) runCollectPhase(ctx context.Context, state State, broadcasts bool) error {
	if o.Log != nil {
		o.Log.Info("entering phase", "state", state, "broadcasts", broadcasts)
	}
	seconds := int(o.Cfg.Phase.Duration / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	var err error
	if broadcasts {
		err = o.Radio.Ping(seconds, o.Cfg.Phase.PingRate, o.PeerMAC)
	} else {
		err = o.Radio.Recv(seconds, o.PeerMAC)
	}
	if err != nil {
		return err
	}

	select {
	case <-time.After(o.Cfg.Phase.Duration):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ingestLoop classifies every line from the radio, recording CSI frames
// into the aggregator and Public Messages into the inbox, persisting both.
func (o *Orchestrator) ingestLoop(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			o.ingestLine(line, time.Now())
		}
	}
}

func (o *Orchestrator) ingestLine(line string, at time.Time) {
	switch serial.Classify(line) {
	case serial.LineCSI:
		f, err := csiframe.Parse(line)
		if err != nil {
			return
		}
		o.Agg.Add(f)
		if o.Persist != nil {
			o.Persist.Append(at, persist.RecordCSI, line)
		}
	case serial.LineChat:
		if m, ok := pubchannel.Parse(line); ok {
			o.Inbox.Push(m)
		}
		if o.Persist != nil {
			o.Persist.Append(at, persist.RecordMSG, line)
		}
	}
}

func (o *Orchestrator) runReconcile(ctx context.Context, bits []byte) (cascade.Report, error) {
	cfg := cascade.Config{
		Passes:       o.Cfg.Cascade.Passes,
		InitialBlock: o.Cfg.Cascade.InitialBlock,
		InitTimeout:  o.Cfg.Cascade.InitTimeout,
		RespTimeout:  o.Cfg.Cascade.RespTimeout,
	}

	switch o.Role {
	case RoleAlice:
		in := &cascade.Initiator{Bits: bits, Bus: o.Out, Inbox: o.Inbox, Config: cfg, Log: o.Log}
		return cascade.Report{}, in.Run(ctx)
	case RoleBob:
		resp := &cascade.Responder{Bits: bits, Bus: o.Out, Inbox: o.Inbox, Config: cfg, Log: o.Log}
		return resp.Run(ctx)
	case RoleEve:
		eve := &cascade.Eavesdropper{Inbox: o.Inbox, Passes: cfg.Passes}
		eve.Observe(ctx, cfg.InitTimeout)
		return cascade.Report{}, nil
	default:
		return cascade.Report{}, fmt.Errorf("session: unknown role %q", o.Role)
	}
}

func (o *Orchestrator) runSecureTest(ctx context.Context, key [32]byte) (securechan.Outcome, error) {
	const plaintext = "plkg-secure-channel-test"

	if o.Role == RoleAlice {
		payload, err := securechan.Seal(key, []byte(plaintext))
		if err != nil {
			return securechan.Outcome{}, err
		}
		o.Out.Publish(pubchannel.FormatSecureMsg(payload))
		return securechan.Outcome{Success: true, Plaintext: []byte(plaintext)}, nil
	}

	m, ok := o.Inbox.Await(ctx, func(m pubchannel.Message) bool { return m.Kind == pubchannel.KindSecureMsg })
	if !ok {
		return securechan.Outcome{}, plkgerr.New(plkgerr.KindDecryptionFailure, "session.test", nil)
	}
	return securechan.Attempt(key, m.Payload), nil
}

// ComputeBER reports the bit error rate between two expanded,
// one-bit-per-byte arrays (e.g. from bitstring.Unpack) of possibly
// different lengths, comparing over their shared prefix. Packed keys like
// Result.RawKey must be unpacked before calling this — comparing packed
// bytes directly would count one mismatched bit as a whole-byte mismatch,
// an 8x-coarser statistic. This is a reporting utility for a
// single-process demo harness that can see both endpoints' keys, not a
// capability either endpoint has on its own.
func ComputeBER(a, b []byte) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	diff := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(n)
}

// KeysMatch reports whether two Final Keys are bit-identical, the
// alice/bob success condition from the reference demo (spec §4.6).
func KeysMatch(a, b [32]byte) bool {
	return a == b
}
