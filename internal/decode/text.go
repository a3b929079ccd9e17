package decode

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/bavix/scanbridge/internal/transport"
)

// minRawNetworkLength is the length a non-JSON stream message must exceed to count as a code.
const minRawNetworkLength = 5

type networkMessage struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Barcode string `json:"barcode"`
}

func trimPayload(s string) string {
	return strings.TrimFunc(strings.ToValidUTF8(s, ""), func(r rune) bool {
		return unicode.IsSpace(r) || r == 0
	})
}

func decodeBLE(sig transport.RawSignal) (string, bool, error) {
	text := trimPayload(string(sig.Data))

	return text, text != "", nil
}

func decodeNetwork(sig transport.RawSignal) (string, bool, error) {
	var msg networkMessage
	if err := json.Unmarshal(sig.Data, &msg); err == nil {
		switch {
		case msg.Type == "barcode" && msg.Value != "":
			return strings.TrimSpace(msg.Value), true, nil
		case msg.Barcode != "":
			return strings.TrimSpace(msg.Barcode), true, nil
		default:
			return "", false, nil
		}
	}

	raw := trimPayload(string(sig.Data))

	return raw, len(raw) > minRawNetworkLength, nil
}
