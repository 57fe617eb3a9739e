package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barnettlynn/plkg/internal/bitstring"
	"github.com/barnettlynn/plkg/internal/config"
	"github.com/barnettlynn/plkg/internal/csiagg"
	"github.com/barnettlynn/plkg/internal/pubchannel"
)

// fakeRadio is a loopback stand-in for *internal/serial.Adapter: MsgSend on
// one fakeRadio delivers directly onto its peer's Lines channel, modeling a
// clean real-time RF link, while CSI records are injected straight onto a
// radio's own channel (as if freshly captured).
type fakeRadio struct {
	lines chan string
	peer  *fakeRadio
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{lines: make(chan string, 256)}
}

func (f *fakeRadio) Restart() error                             { return nil }
func (f *fakeRadio) RadioInit(int, string, string) error        { return nil }
func (f *fakeRadio) Ping(int, int, string) error                { return nil }
func (f *fakeRadio) Recv(int, string) error                     { return nil }
func (f *fakeRadio) MsgListen() error                            { return nil }
func (f *fakeRadio) MsgSend(dstMAC, text string) error {
	f.peer.lines <- "MSG_RECV:" + text
	return nil
}
func (f *fakeRadio) Lines(ctx context.Context) <-chan string { return f.lines }

func csiLine(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.Itoa(i + 1)
	}
	return fmt.Sprintf("CSI_DATA [%s]", strings.Join(parts, ","))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Phase.Duration = 30 * time.Millisecond
	cfg.Cascade.Passes = 2
	cfg.Cascade.InitTimeout = 500 * time.Millisecond
	cfg.Cascade.RespTimeout = 200 * time.Millisecond
	return cfg
}

func TestRunConvergesWithIdenticalCSIAndZeroCorrections(t *testing.T) {
	aliceRadio, bobRadio := newFakeRadio(), newFakeRadio()
	aliceRadio.peer, bobRadio.peer = bobRadio, aliceRadio

	line := csiLine(130)
	for i := 0; i < 12; i++ {
		aliceRadio.lines <- line
		bobRadio.lines <- line
	}

	cfg := testConfig()
	alice := New(RoleAlice, cfg, "BOB", aliceRadio,
		RadioPublisher{Radio: aliceRadio, PeerMAC: "BOB"}, pubchannel.NewInbox(), nil, nil)
	bob := New(RoleBob, cfg, "ALICE", bobRadio,
		RadioPublisher{Radio: bobRadio, PeerMAC: "ALICE"}, pubchannel.NewInbox(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var aliceRes, bobRes Result
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); aliceRes = alice.Run(ctx) }()
	go func() { defer wg.Done(); bobRes = bob.Run(ctx) }()
	wg.Wait()

	require.NoError(t, aliceRes.Err)
	require.NoError(t, bobRes.Err)
	assert.Equal(t, StateDone, aliceRes.FinalState)
	assert.Equal(t, StateDone, bobRes.FinalState)
	assert.Equal(t, 0, bobRes.Corrections.TotalCorrections)
	assert.Equal(t, aliceRes.FinalKey, bobRes.FinalKey)
	assert.True(t, KeysMatch(aliceRes.FinalKey, bobRes.FinalKey))
	assert.True(t, bobRes.SecureOutcome.Success)
}

func TestComputeBERCountsMismatchesOverSharedPrefix(t *testing.T) {
	a := []byte{1, 0, 1, 0}
	b := []byte{1, 1, 1, 1}
	assert.InDelta(t, 0.5, ComputeBER(a, b), 1e-9)
}

func TestComputeBERZeroOnIdenticalKeys(t *testing.T) {
	a := []byte{1, 0, 1}
	assert.Equal(t, 0.0, ComputeBER(a, a))
}

// TestComputeBEROnUnpackedPackedKeysCountsSingleBitMismatch exercises the
// actual call-site usage: two packed RawKeys differing in exactly one bit
// must be unpacked via bitstring.Unpack before ComputeBER sees them, so the
// reported rate is 1/nBits, not a whole-byte-granular rate.
func TestComputeBEROnUnpackedPackedKeysCountsSingleBitMismatch(t *testing.T) {
	nBits := 16
	bits := []byte{1, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0, 0, 1, 0, 1, 1}
	packedA := bitstring.Pack(bits)
	flipped := append([]byte(nil), bits...)
	flipped[3] ^= 1
	packedB := bitstring.Pack(flipped)

	ber := ComputeBER(bitstring.Unpack(packedA, nBits), bitstring.Unpack(packedB, nBits))
	assert.InDelta(t, 1.0/float64(nBits), ber, 1e-9)
}

func TestKeysMatch(t *testing.T) {
	var a, b [32]byte
	a[0] = 1
	b[0] = 1
	assert.True(t, KeysMatch(a, b))
	b[1] = 1
	assert.False(t, KeysMatch(a, b))
}

func TestIngestLineClassifiesCSIAndChat(t *testing.T) {
	cfg := config.Default()
	o := &Orchestrator{Inbox: pubchannel.NewInbox(), Agg: csiagg.New(cfg.CSI.Window)}

	o.ingestLine(csiLine(130), time.Now())
	assert.Equal(t, 1, o.Agg.Count())

	o.ingestLine("MSG_RECV:CAS_DONE:0", time.Now())
	m, ok := o.Inbox.Await(context.Background(), func(m pubchannel.Message) bool { return true })
	require.True(t, ok)
	assert.Equal(t, pubchannel.KindCasDone, m.Kind)
}
