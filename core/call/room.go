package call

import "github.com/google/uuid"

// roomNamespace seeds the deterministic chat-id -> room-id derivation. Both
// parties derive the identical room without a negotiation round trip.
var roomNamespace = uuid.MustParse("8f3b1c6a-0d2e-4b5f-9a47-6c1e8d90b3a2")

// RoomID derives the conferencing room identifier for a chat. The mapping is
// 1:1 and stable across sessions.
func RoomID(chatID string) string {
	return uuid.NewSHA1(roomNamespace, []byte(chatID)).String()
}

// RoomName builds the full widget room name from the configured app identifier
// and a room id.
func RoomName(appID, roomID string) string {
	return appID + "/" + roomID
}
