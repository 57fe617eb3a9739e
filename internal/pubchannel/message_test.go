package pubchannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatParseRoundTripCasInit(t *testing.T) {
	line := FormatCasInit(3, "1010")
	m, ok := Parse(line)
	assert.True(t, ok)
	assert.Equal(t, KindCasInit, m.Kind)
	assert.Equal(t, 3, m.Pass)
	assert.Equal(t, "1010", m.Parities)
}

func TestFormatParseRoundTripCasReq(t *testing.T) {
	line := FormatCasReq(1, 4, 2)
	m, ok := Parse(line)
	assert.True(t, ok)
	assert.Equal(t, KindCasReq, m.Kind)
	assert.Equal(t, 1, m.Pass)
	assert.Equal(t, 4, m.Start)
	assert.Equal(t, 2, m.Length)
}

func TestFormatParseRoundTripCasResp(t *testing.T) {
	line := FormatCasResp(2, 7, '1')
	m, ok := Parse(line)
	assert.True(t, ok)
	assert.Equal(t, KindCasResp, m.Kind)
	assert.Equal(t, byte('1'), m.Parity)
}

func TestFormatParseRoundTripCasDone(t *testing.T) {
	line := FormatCasDone(5)
	m, ok := Parse(line)
	assert.True(t, ok)
	assert.Equal(t, KindCasDone, m.Kind)
	assert.Equal(t, 5, m.Pass)
}

func TestFormatParseRoundTripSecureMsg(t *testing.T) {
	line := FormatSecureMsg("DEADBEEF")
	m, ok := Parse(line)
	assert.True(t, ok)
	assert.Equal(t, KindSecureMsg, m.Kind)
	assert.Equal(t, "deadbeef", m.Payload)
}

func TestParseTakesPrefixNoise(t *testing.T) {
	line := "rssi=-52 [mac=AA:BB] CAS_DONE:9"
	m, ok := Parse(line)
	assert.True(t, ok)
	assert.Equal(t, 9, m.Pass)
}

func TestParseRejectsUnrecognized(t *testing.T) {
	_, ok := Parse("hello there, nothing to see")
	assert.False(t, ok)
}

func TestParseEarliestTagWins(t *testing.T) {
	// A line carrying two tags (e.g. retransmitted noise) anchors on the
	// earliest occurrence.
	line := "CAS_DONE:1 garbage CAS_INIT:2:1010"
	m, ok := Parse(line)
	assert.True(t, ok)
	assert.Equal(t, KindCasDone, m.Kind)
}
