package lwrf

import (
	"context"
	"time"
)

// metricsLoop writes the decoder and bridge counters every metricsInterval.
func (b *Bridge) metricsLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case <-ticker.C:
			b.telemetry.WriteDecoderStats(b.cfg.Bridge.ID, counterFields(b.Statistics()))
		}
	}
}

// counterFields flattens statistics into lwrf_decoder fields.
func counterFields(s BridgeStatistics) map[string]uint64 {
	d := s.Decoder
	return map[string]uint64{
		"short_pulse_high":   d.ShortPulseHigh,
		"long_pulse_low":     d.LongPulseLow,
		"out_of_band":        d.OutOfBand,
		"zero_at_byte_start": d.ZeroAtByteStart,
		"sentinel_mismatch":  d.SentinelMismatch,
		"sentinel_recovered": d.SentinelRecovered,
		"messages_decoded":   d.Messages,
		"messages_received":  s.MessagesReceived,
		"messages_sent":      s.MessagesSent,
		"duplicates":         s.Duplicates,
		"unpaired":           s.Unpaired,
		"malformed":          s.Malformed,
		"errors":             s.Errors,
	}
}
