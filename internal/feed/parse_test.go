package feed

import (
	"encoding/binary"
	"testing"
	"time"
)

// buildFrame assembles a binary frame from packets.
func buildFrame(packets ...[]byte) []byte {
	frame := make([]byte, 2)
	binary.BigEndian.PutUint16(frame, uint16(len(packets)))
	for _, p := range packets {
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(p)))
		frame = append(frame, lenBuf...)
		frame = append(frame, p...)
	}
	return frame
}

// ltpPacket builds an 8-byte packet for a token with the price in
// raw wire units.
func ltpPacket(token uint32, rawPrice int32) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint32(p[0:4], token)
	binary.BigEndian.PutUint32(p[4:8], uint32(rawPrice))
	return p
}

func fullPacket(token uint32, rawPrice int32, lastTrade, exchangeTS int32) []byte {
	p := make([]byte, packetFull)
	binary.BigEndian.PutUint32(p[0:4], token)
	binary.BigEndian.PutUint32(p[4:8], uint32(rawPrice))
	binary.BigEndian.PutUint32(p[44:48], uint32(lastTrade))
	binary.BigEndian.PutUint32(p[60:64], uint32(exchangeTS))
	return p
}

func indexFullPacket(token uint32, rawPrice int32, exchangeTS int32) []byte {
	p := make([]byte, packetIndexFull)
	binary.BigEndian.PutUint32(p[0:4], token)
	binary.BigEndian.PutUint32(p[4:8], uint32(rawPrice))
	binary.BigEndian.PutUint32(p[28:32], uint32(exchangeTS))
	return p
}

func TestParseBinary_LTPPacket(t *testing.T) {
	receivedAt := time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)
	// Token in a non-index segment: price divisor 100.
	frame := buildFrame(ltpPacket(9604354, 1748250))

	ticks := parseBinary(frame, receivedAt)
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}

	tick := ticks[0]
	if tick.InstrumentToken != 9604354 {
		t.Errorf("InstrumentToken = %d, want 9604354", tick.InstrumentToken)
	}
	if tick.LastPrice == nil || *tick.LastPrice != 17482.50 {
		t.Errorf("LastPrice = %v, want 17482.50", tick.LastPrice)
	}
	if !tick.ReceivedAt.Equal(receivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", tick.ReceivedAt, receivedAt)
	}
	if !tick.LastTradeTime.IsZero() {
		t.Errorf("LastTradeTime = %v, want zero for ltp packet", tick.LastTradeTime)
	}
}

func TestParseBinary_FullPacketTimestamps(t *testing.T) {
	lastTrade := int32(1768881600)  // 2026-01-20 04:00:00 UTC
	exchangeTS := int32(1768881605) // five seconds later
	frame := buildFrame(fullPacket(9604354, 1750000, lastTrade, exchangeTS))

	ticks := parseBinary(frame, time.Now())
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}

	tick := ticks[0]
	if got := tick.LastTradeTime.Unix(); got != int64(lastTrade) {
		t.Errorf("LastTradeTime = %d, want %d", got, lastTrade)
	}
	if got := tick.ExchangeTime.Unix(); got != int64(exchangeTS) {
		t.Errorf("ExchangeTime = %d, want %d", got, exchangeTS)
	}
}

func TestParseBinary_IndexPacket(t *testing.T) {
	// 256265 & 0xFF == 9: indices segment.
	token := uint32(256265)
	if !isIndex(token) {
		t.Fatalf("token %d not detected as index", token)
	}

	exchangeTS := int32(1768881600)
	frame := buildFrame(indexFullPacket(token, 1748200, exchangeTS))

	ticks := parseBinary(frame, time.Now())
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}

	tick := ticks[0]
	if tick.LastPrice == nil || *tick.LastPrice != 17482.00 {
		t.Errorf("LastPrice = %v, want 17482.00", tick.LastPrice)
	}
	if got := tick.ExchangeTime.Unix(); got != int64(exchangeTS) {
		t.Errorf("ExchangeTime = %d, want %d", got, exchangeTS)
	}
	if !tick.LastTradeTime.IsZero() {
		t.Errorf("LastTradeTime = %v, want zero for index packet", tick.LastTradeTime)
	}
}

func TestParseBinary_MultiplePackets(t *testing.T) {
	frame := buildFrame(
		ltpPacket(1001, 10000),
		ltpPacket(1002, 20000),
		ltpPacket(1003, 30000),
	)

	ticks := parseBinary(frame, time.Now())
	if len(ticks) != 3 {
		t.Fatalf("len(ticks) = %d, want 3", len(ticks))
	}
	for i, want := range []uint32{1001, 1002, 1003} {
		if ticks[i].InstrumentToken != want {
			t.Errorf("ticks[%d].InstrumentToken = %d, want %d", i, ticks[i].InstrumentToken, want)
		}
	}
}

func TestParseBinary_CurrencyDivisor(t *testing.T) {
	// Token in the currency derivatives segment quotes at 1e7.
	token := uint32((42 << 8) | segmentNseCD)
	frame := buildFrame(ltpPacket(token, 834_512_500))

	ticks := parseBinary(frame, time.Now())
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}
	if got := *ticks[0].LastPrice; got != 83.45125 {
		t.Errorf("LastPrice = %v, want 83.45125", got)
	}
}

func TestParseBinary_Heartbeat(t *testing.T) {
	if ticks := parseBinary([]byte{0}, time.Now()); ticks != nil {
		t.Errorf("parseBinary(heartbeat) = %v, want nil", ticks)
	}
}

func TestParseBinary_TruncatedFrame(t *testing.T) {
	frame := buildFrame(ltpPacket(1001, 10000))
	// Claim two packets but provide one.
	binary.BigEndian.PutUint16(frame[0:2], 2)

	ticks := parseBinary(frame, time.Now())
	if len(ticks) != 1 {
		t.Errorf("len(ticks) = %d, want 1 (truncation must not lose the valid packet)", len(ticks))
	}
}

func TestZeroEpochIsZeroTime(t *testing.T) {
	frame := buildFrame(fullPacket(1001, 10000, 0, 0))

	ticks := parseBinary(frame, time.Now())
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}
	if !ticks[0].LastTradeTime.IsZero() || !ticks[0].ExchangeTime.IsZero() {
		t.Errorf("zero epoch seconds must map to zero time, got %v / %v",
			ticks[0].LastTradeTime, ticks[0].ExchangeTime)
	}
}
