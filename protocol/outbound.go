package protocol

import "encoding/json"

// Handshake announces a polling client to the server. It is sent once, right
// after open, and only over the polling transport.
const Handshake = "handshake"

// KindPlayerExit is the mType of the logout notification.
const KindPlayerExit Kind = "PlayerExit"

type playerExit struct {
	Player json.RawMessage `json:"player"`
	MType  Kind            `json:"mType"`
}

// PlayerExit encodes the logout notification for a player. Integer ids are
// written as JSON numbers, which is what servers of both generations expect;
// any other id is written as a string.
func PlayerExit(playerID string) ([]byte, error) {
	var id json.RawMessage
	if isInteger(playerID) {
		id = json.RawMessage(playerID)
	} else {
		quoted, err := json.Marshal(playerID)
		if err != nil {
			return nil, err
		}
		id = quoted
	}
	return json.Marshal(playerExit{Player: id, MType: KindPlayerExit})
}

// isInteger reports whether s is a valid JSON integer literal.
func isInteger(s string) bool {
	if len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
