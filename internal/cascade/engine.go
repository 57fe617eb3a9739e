package cascade

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/barnettlynn/plkg/internal/permute"
	"github.com/barnettlynn/plkg/internal/plkgerr"
	"github.com/barnettlynn/plkg/internal/pubchannel"
)

// Config bounds one Cascade run: the number of passes, the starting block
// size, and the timeouts governing CAS_INIT and CAS_RESP waits.
type Config struct {
	Passes       int
	InitialBlock int
	InitTimeout  time.Duration
	RespTimeout  time.Duration
}

// DefaultConfig matches the spec's suggested defaults (§4.4).
func DefaultConfig() Config {
	return Config{
		Passes:       8,
		InitialBlock: 4,
		InitTimeout:  8 * time.Second,
		RespTimeout:  3 * time.Second,
	}
}

// Report summarizes one reconciliation run: corrections applied per pass
// and the total, for the session's BER/convergence reporting.
type Report struct {
	CorrectionsByPass []int
	TotalCorrections  int
}

// Initiator runs the reference-key side of Cascade (spec §4.4.1).
type Initiator struct {
	Bits   []byte // expanded one-byte-per-bit key; read-only, never modified
	Bus    pubchannel.Publisher
	Inbox  *pubchannel.Inbox
	Config Config
	Log    *log.Logger
}

// Run drives all configured passes. The initiator's key is never modified;
// Run only answers CAS_REQ probes from the responder.
func (in *Initiator) Run(ctx context.Context) error {
	for pass := 0; pass < in.Config.Passes; pass++ {
		if err := in.runPass(ctx, pass); err != nil {
			return err
		}
	}
	return nil
}

func (in *Initiator) runPass(ctx context.Context, pass int) error {
	perm := permute.Derive(pass, len(in.Bits))
	blocks := Partition(perm.Len(), BlockSize(in.Config.InitialBlock, pass))
	parities := Parities(in.Bits, perm, blocks)

	in.Bus.Publish(pubchannel.FormatCasInit(pass, parities))

	for {
		pctx, cancel := context.WithTimeout(ctx, in.Config.InitTimeout)
		m, ok := in.Inbox.Await(pctx, func(m pubchannel.Message) bool {
			return m.Pass == pass && (m.Kind == pubchannel.KindCasReq || m.Kind == pubchannel.KindCasDone)
		})
		cancel()
		if !ok {
			return plkgerr.New(plkgerr.KindReconciliationTimeout, "cascade.initiator", nil)
		}
		if m.Kind == pubchannel.KindCasDone {
			return nil
		}

		parity := Parity(in.Bits, perm, m.Start, m.Length)
		in.Bus.Publish(pubchannel.FormatCasResp(pass, m.Start, '0'+parity))
		if in.Log != nil {
			in.Log.Debug("answered CAS_REQ", "pass", pass, "start", m.Start, "length", m.Length, "parity", parity)
		}
	}
}

// Responder runs the noisy-key side of Cascade (spec §4.4.2).
type Responder struct {
	Bits   []byte // expanded one-byte-per-bit key; corrected in place
	Bus    pubchannel.Publisher
	Inbox  *pubchannel.Inbox
	Config Config
	Log    *log.Logger
}

// Run drives all configured passes and returns a per-pass correction report.
func (r *Responder) Run(ctx context.Context) (Report, error) {
	report := Report{CorrectionsByPass: make([]int, r.Config.Passes)}
	for pass := 0; pass < r.Config.Passes; pass++ {
		n, err := r.runPass(ctx, pass)
		if err != nil {
			return report, err
		}
		report.CorrectionsByPass[pass] = n
		report.TotalCorrections += n
	}
	return report, nil
}

func (r *Responder) runPass(ctx context.Context, pass int) (int, error) {
	ictx, cancel := context.WithTimeout(ctx, r.Config.InitTimeout)
	init, ok := r.Inbox.Await(ictx, func(m pubchannel.Message) bool {
		return m.Kind == pubchannel.KindCasInit && m.Pass == pass
	})
	cancel()
	if !ok {
		// No CAS_INIT arrived in time: yield zero corrections and move on
		// (spec §4.4.6).
		r.Bus.Publish(pubchannel.FormatCasDone(pass))
		return 0, nil
	}

	perm := permute.Derive(pass, len(r.Bits))
	blocks := Partition(perm.Len(), BlockSize(r.Config.InitialBlock, pass))
	corrections := 0

	for i, b := range blocks {
		if i >= len(init.Parities) {
			break
		}
		want := byte(0)
		if init.Parities[i] == '1' {
			want = 1
		}
		if Parity(r.Bits, perm, b.Start, b.Length) != want {
			flipped, err := binarySearch(ctx, r.Bits, perm, r.Bus, r.Inbox, pass, b.Start, b.Length, r.Config.RespTimeout)
			if err != nil {
				return corrections, err
			}
			if flipped {
				corrections++
			}
		}
	}

	r.Bus.Publish(pubchannel.FormatCasDone(pass))
	if r.Log != nil {
		r.Log.Info("pass complete", "pass", pass, "corrections", corrections)
	}
	return corrections, nil
}

// binarySearch implements the interactive binary search (spec §4.4.3). It
// assumes the caller has already established that local and remote parity
// disagree over [start, start+length). It flips at most one bit and
// reports whether it did.
func binarySearch(ctx context.Context, bits []byte, perm permute.Permutation, bus pubchannel.Publisher, inbox *pubchannel.Inbox, pass, start, length int, timeout time.Duration) (bool, error) {
	for length > 1 {
		leftLen := length / 2
		leftStart := start

		localParity := Parity(bits, perm, leftStart, leftLen)
		bus.Publish(pubchannel.FormatCasReq(pass, leftStart, leftLen))

		rctx, cancel := context.WithTimeout(ctx, timeout)
		resp, ok := inbox.Await(rctx, func(m pubchannel.Message) bool {
			return m.Kind == pubchannel.KindCasResp && m.Pass == pass && m.Start == leftStart
		})
		cancel()
		if !ok {
			// Timed-out CAS_RESP: abort this search, one error remains
			// undiagnosed in the block (spec §4.4.6).
			return false, nil
		}

		remoteParity := byte(0)
		if resp.Parity == '1' {
			remoteParity = 1
		}
		if localParity != remoteParity {
			start, length = leftStart, leftLen
		} else {
			start, length = leftStart+leftLen, length-leftLen
		}
	}

	idx := perm.At(start)
	bits[idx] ^= 1
	return true, nil
}

// Eavesdropper passively observes Public Messages for every pass, learning
// block parities and the dynamically-probed sub-range parities, without
// transmitting or modifying its own key (spec §4.4.4).
type Eavesdropper struct {
	Inbox  *pubchannel.Inbox
	Passes int

	// ObservedParities counts every block/sub-range parity bit observed
	// across all passes, split by whether the bit was '0' or '1'.
	ObservedParities [2]int
}

// Observe records observations for each configured pass from the inbox
// until that pass's CAS_DONE arrives or perPassTimeout elapses, or stops
// early if ctx is done. It never publishes anything.
func (e *Eavesdropper) Observe(ctx context.Context, perPassTimeout time.Duration) {
	for pass := 0; pass < e.Passes; pass++ {
		e.observePass(ctx, pass, perPassTimeout)
	}
}

func (e *Eavesdropper) observePass(ctx context.Context, pass int, timeout time.Duration) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		m, ok := e.Inbox.Await(pctx, func(m pubchannel.Message) bool {
			return m.Pass == pass && (m.Kind == pubchannel.KindCasInit ||
				m.Kind == pubchannel.KindCasResp || m.Kind == pubchannel.KindCasDone)
		})
		if !ok {
			return
		}
		switch m.Kind {
		case pubchannel.KindCasInit:
			for _, c := range m.Parities {
				if c == '1' {
					e.ObservedParities[1]++
				} else {
					e.ObservedParities[0]++
				}
			}
		case pubchannel.KindCasResp:
			if m.Parity == '1' {
				e.ObservedParities[1]++
			} else {
				e.ObservedParities[0]++
			}
		case pubchannel.KindCasDone:
			return
		}
	}
}
