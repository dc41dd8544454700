package gateway

import (
	"strconv"
	"time"
)

// Broadcast records data as the latest on channel and sends it to every
// client subscribed to the channel's symbol. data must be valid JSON.
// Slow clients whose queue is full miss the message.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()
	drops := 0

	// Sequence assignment, replay push and sends share one critical section
	// so every client and the replay buffer see a channel in channel_seq order.
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: append([]byte(nil), data...), TS: now, Seq: channelSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(h.replayCap)
		h.replayBufs[channel] = rb
	}

	buf := buildEnvelope(channel, data, now, seq, channelSeq, false)
	rb.Push(channelSeq, buf)

	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			drops++
		}
	}
	h.mu.Unlock()

	if drops > 0 && h.metrics != nil {
		h.metrics.GatewayDrops.Add(float64(drops))
	}
}

// buildEnvelope writes {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}
// by hand; channel names never need escaping.
func buildEnvelope(channel string, data []byte, ts time.Time, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
