package reliable

// GroupPackets batches several small outgoing packets destined to the
// same connection into one or more grouped envelopes
// ([0x00, 0x0E, len_u8, packet, len_u8, packet, ...]), each capped at
// MaxGroupedPayload so the resulting datagram stays MTU-safe. Packets
// longer than 255 bytes (the length byte's limit), or at or beyond the
// cap, pass through ungrouped.
func GroupPackets(packets [][]byte) [][]byte {
	var out [][]byte
	var cur []byte

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, cur)
		cur = nil
	}

	for _, p := range packets {
		if len(p) > 255 || len(p) >= MaxGroupedPayload {
			flush()
			out = append(out, p)
			continue
		}

		entrySize := 1 + len(p)
		if len(cur) == 0 {
			cur = append([]byte{CorePrefix, byte(CoreGrouped)}, byte(len(p)))
			cur = append(cur, p...)
			continue
		}
		if len(cur)+entrySize > MaxGroupedPayload {
			flush()
			cur = append([]byte{CorePrefix, byte(CoreGrouped)}, byte(len(p)))
			cur = append(cur, p...)
			continue
		}
		cur = append(cur, byte(len(p)))
		cur = append(cur, p...)
	}
	flush()
	return out
}

// UngroupPacket splits a received grouped envelope's body (everything
// after the [0x00, 0x0E] prefix) back into its constituent sub-packets.
func UngroupPacket(body []byte) [][]byte {
	var out [][]byte
	for len(body) > 0 {
		n := int(body[0])
		body = body[1:]
		if n > len(body) {
			break
		}
		out = append(out, body[:n])
		body = body[n:]
	}
	return out
}
