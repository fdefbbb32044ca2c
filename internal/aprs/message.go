package aprs

import "strings"

// decodeMessage handles `:CALLSIGN :text{id`, dispatching to ack/reject
// when the body is `ackNNNNN`/`rejNNNNN`, per §4.5. A nil, nil result
// (no error) means info was a well-formed telemetry-parameter broadcast
// (PARM./UNIT./EQNS./BITS.) rather than a user message — these still
// count as valid `:` frames but the message manager has nothing to do
// with them.
func decodeMessage(from, info string) (any, error) {
	if !strings.HasPrefix(info, ":") || len(info) < 11 || info[10] != ':' {
		return nil, ErrNotThisFormat
	}
	to := strings.TrimSpace(info[1:10])
	body := info[11:]

	text := body
	id := ""
	if idx := strings.IndexByte(body, '{'); idx >= 0 {
		text = body[:idx]
		id = strings.TrimSpace(body[idx+1:])
	}

	if hasAnyPrefix(text, "PARM.", "UNIT.", "EQNS.", "BITS.") {
		return nil, nil
	}

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "ack"):
		ackedID := text[3:]
		if idx := strings.IndexByte(ackedID, '}'); idx >= 0 {
			ackedID = ackedID[:idx]
		}
		return &Ack{From: strings.ToUpper(from), To: strings.ToUpper(to), ID: strings.TrimSpace(ackedID)}, nil
	case strings.HasPrefix(lower, "rej"):
		rejID := text[3:]
		if idx := strings.IndexByte(rejID, '}'); idx >= 0 {
			rejID = rejID[:idx]
		}
		return &Reject{From: strings.ToUpper(from), To: strings.ToUpper(to), ID: strings.TrimSpace(rejID)}, nil
	}

	return &Message{From: strings.ToUpper(from), To: strings.ToUpper(to), Text: text, ID: id}, nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
