package admin

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// encodeUint64Min packs an id into the shortest url-safe base64 form so
// callback data stays under the 64 byte Telegram limit.
func encodeUint64Min(value uint64) string {
	if value == 0 {
		return base64.RawURLEncoding.EncodeToString([]byte{0})
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	i := 0
	for i < len(buf) && buf[i] == 0 {
		i++
	}
	return base64.RawURLEncoding.EncodeToString(buf[i:])
}

func decodeUint64Min(value string) (uint64, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	if len(data) == 0 || len(data) > 8 {
		return 0, fmt.Errorf("invalid id length")
	}
	if len(data) < 8 {
		padded := make([]byte, 8-len(data))
		data = append(padded, data...)
	}
	return binary.BigEndian.Uint64(data), nil
}

func panelCallbackData(sessionID, commandID int64) string {
	return encodeUint64Min(uint64(sessionID)) + "_" + encodeUint64Min(uint64(commandID))
}
