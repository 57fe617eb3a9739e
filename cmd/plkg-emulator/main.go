// Command plkg-emulator runs alice, bob, and an optional eve in a single
// process over a synthetic radio medium, for integration testing and demos
// without real hardware. It mirrors the reference implementation's
// three-role simulation harness: it feeds every endpoint correlated CSI
// samples, lets them reconcile and amplify a key over Cascade, runs the
// Secure Channel Test, and reports BER and key agreement.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/barnettlynn/plkg/internal/bitstring"
	"github.com/barnettlynn/plkg/internal/config"
	"github.com/barnettlynn/plkg/internal/pubchannel"
	"github.com/barnettlynn/plkg/internal/session"
)

// emulatorRadio is a session.RadioSource backed by an in-memory line
// channel instead of a real serial port. Outbound commands are no-ops;
// MsgSend broadcasts straight onto every peer's channel, modeling a shared
// public channel all roles (including eve) observe.
type emulatorRadio struct {
	lines chan string
	peers []*emulatorRadio
}

func newEmulatorRadio() *emulatorRadio {
	return &emulatorRadio{lines: make(chan string, 1024)}
}

func (r *emulatorRadio) Restart() error                      { return nil }
func (r *emulatorRadio) RadioInit(int, string, string) error { return nil }
func (r *emulatorRadio) Ping(int, int, string) error         { return nil }
func (r *emulatorRadio) Recv(int, string) error               { return nil }
func (r *emulatorRadio) MsgListen() error                     { return nil }

func (r *emulatorRadio) MsgSend(dstMAC, text string) error {
	for _, p := range r.peers {
		select {
		case p.lines <- "MSG_RECV:" + text:
		default:
		}
	}
	return nil
}

func (r *emulatorRadio) Lines(ctx context.Context) <-chan string { return r.lines }

func wireMedium(radios ...*emulatorRadio) {
	for _, r := range radios {
		for _, other := range radios {
			if other != r {
				r.peers = append(r.peers, other)
			}
		}
	}
}

// feedCSI pushes correlated synthetic CSI frames onto every radio for the
// configured duration: a shared "true" channel profile plus independent
// per-endpoint noise, matching the reciprocal-but-not-identical channel
// estimates real endpoints observe.
func feedCSI(ctx context.Context, rng *rand.Rand, radios []*emulatorRadio, frameLen int, noiseStd float64, rate time.Duration) {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			base := make([]float64, frameLen)
			for i := range base {
				base[i] = 50 + 20*rng.Float64()
			}
			for _, r := range radios {
				line := formatCSILine(base, rng, noiseStd)
				select {
				case r.lines <- line:
				default:
				}
			}
		}
	}
}

func formatCSILine(base []float64, rng *rand.Rand, noiseStd float64) string {
	values := make([]int, len(base))
	for i, v := range base {
		noisy := v + rng.NormFloat64()*noiseStd
		values[i] = int(noisy)
	}
	buf := []byte("CSI_DATA [")
	for i, v := range values {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = fmt.Appendf(buf, "%d", v)
	}
	buf = append(buf, ']')
	return string(buf)
}

func main() {
	var (
		withEve  = pflag.Bool("eve", true, "also run a passive eavesdropper")
		frameLen = pflag.Int("frame-len", 130, "synthetic CSI frame length (magnitude samples)")
		noiseStd = pflag.Float64("noise", 2.0, "per-endpoint CSI measurement noise (std dev)")
		duration = pflag.Duration("phase-duration", 3*time.Second, "duration of each collect phase")
		passes   = pflag.Int("passes", 4, "Cascade pass count")
		verbose  = pflag.Bool("v", false, "enable debug logging")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg := config.Default()
	cfg.Phase.Duration = *duration
	cfg.Cascade.Passes = *passes
	cfg.Cascade.InitTimeout = 5 * time.Second
	cfg.Cascade.RespTimeout = 2 * time.Second

	aliceRadio, bobRadio := newEmulatorRadio(), newEmulatorRadio()
	radios := []*emulatorRadio{aliceRadio, bobRadio}
	var eveRadio *emulatorRadio
	if *withEve {
		eveRadio = newEmulatorRadio()
		radios = append(radios, eveRadio)
	}
	wireMedium(radios...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*(*duration)+30*time.Second)
	defer cancel()

	rng := rand.New(rand.NewPCG(1, 2))
	go feedCSI(ctx, rng, radios, *frameLen, *noiseStd, 20*time.Millisecond)

	type run struct {
		role  session.Role
		radio *emulatorRadio
		res   session.Result
	}
	runs := []*run{
		{role: session.RoleAlice, radio: aliceRadio},
		{role: session.RoleBob, radio: bobRadio},
	}
	if *withEve {
		runs = append(runs, &run{role: session.RoleEve, radio: eveRadio})
	}

	done := make(chan struct{}, len(runs))
	for _, r := range runs {
		r := r
		go func() {
			out := session.RadioPublisher{Radio: r.radio, PeerMAC: string(otherRole(r.role))}
			orc := session.New(r.role, cfg, string(otherRole(r.role)), r.radio, out, pubchannel.NewInbox(), nil, logger)
			r.res = orc.Run(ctx)
			done <- struct{}{}
		}()
	}
	for range runs {
		<-done
	}

	var aliceRes, bobRes session.Result
	for _, r := range runs {
		switch r.role {
		case session.RoleAlice:
			aliceRes = r.res
		case session.RoleBob:
			bobRes = r.res
		}
	}

	fmt.Println()
	fmt.Println("=== PLKG emulator run ===")
	for _, r := range runs {
		fmt.Printf("%-6s final_state=%-8s corrections=%-3d err=%v\n",
			r.role, r.res.FinalState, r.res.Corrections.TotalCorrections, r.res.Err)
	}
	if aliceRes.Err == nil && bobRes.Err == nil {
		nBits := 2 * cfg.CSI.KMain
		aliceBits := bitstring.Unpack(aliceRes.RawKey, nBits)
		bobBits := bitstring.Unpack(bobRes.RawKey, nBits)
		fmt.Printf("raw key BER (alice vs bob): %.4f\n", session.ComputeBER(aliceBits, bobBits))
		fmt.Printf("final keys match: %v\n", session.KeysMatch(aliceRes.FinalKey, bobRes.FinalKey))
		fmt.Printf("secure channel test (bob): %v\n", bobRes.SecureOutcome.Success)
	}
}

func otherRole(r session.Role) session.Role {
	switch r {
	case session.RoleAlice:
		return session.RoleBob
	default:
		return session.RoleAlice
	}
}
