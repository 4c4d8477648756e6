package feed

import (
	"encoding/binary"
	"time"

	"github.com/rgovind/kite-ticks/internal/model"
)

// Binary frame layout: a big-endian int16 packet count, then for each
// packet an int16 length followed by the packet bytes. Packet sizes by
// mode: 8 (ltp), 44 (quote), 184 (full); index instruments use 8, 28
// and 32 bytes instead and carry no depth.
const (
	packetLTP       = 8
	packetIndexLTP  = 8
	packetIndexFull = 32
	packetQuote     = 44
	packetFull      = 184

	segmentIndices = 9
	segmentNseCD   = 3
)

// parseBinary decodes one binary frame into ticks. Malformed packets
// are skipped; the rest of the frame still parses.
func parseBinary(data []byte, receivedAt time.Time) []model.Tick {
	if len(data) < 2 {
		// 1-byte frames are heartbeats.
		return nil
	}

	count := int(binary.BigEndian.Uint16(data[0:2]))
	ticks := make([]model.Tick, 0, count)

	offset := 2
	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			break
		}
		length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if length < 4 || offset+length > len(data) {
			break
		}

		if tick, ok := parsePacket(data[offset:offset+length], receivedAt); ok {
			ticks = append(ticks, tick)
		}
		offset += length
	}

	return ticks
}

// parsePacket decodes a single quote packet.
func parsePacket(b []byte, receivedAt time.Time) (model.Tick, bool) {
	if len(b) < packetLTP {
		return model.Tick{}, false
	}

	token := binary.BigEndian.Uint32(b[0:4])
	divisor := priceDivisor(token)

	tick := model.Tick{
		InstrumentToken: token,
		ReceivedAt:      receivedAt,
	}

	ltp := float64(int32(binary.BigEndian.Uint32(b[4:8]))) / divisor
	tick.LastPrice = &ltp

	if isIndex(token) {
		// Index full packet carries an exchange timestamp in its tail.
		if len(b) >= packetIndexFull {
			tick.ExchangeTime = epochSeconds(b[28:32])
		}
		return tick, true
	}

	if len(b) >= packetFull {
		tick.LastTradeTime = epochSeconds(b[44:48])
		tick.ExchangeTime = epochSeconds(b[60:64])
	}

	return tick, true
}

// priceDivisor returns the price scaling for a token's segment.
// Currency derivatives quote at four extra decimals; everything else
// is in hundredths.
func priceDivisor(token uint32) float64 {
	if token&0xFF == segmentNseCD {
		return 10_000_000
	}
	return 100
}

func isIndex(token uint32) bool {
	return token&0xFF == segmentIndices
}

func epochSeconds(b []byte) time.Time {
	secs := int64(int32(binary.BigEndian.Uint32(b)))
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
