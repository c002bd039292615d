package devserver

import (
	"fmt"
	"time"

	lkauth "github.com/livekit/protocol/auth"
)

// CallTokenIssuer mints media room join credentials against a LiveKit
// deployment.
type CallTokenIssuer struct {
	apiKey    string
	apiSecret string
	wsURL     string
}

// NewCallTokenIssuer builds an issuer for the configured LiveKit instance.
func NewCallTokenIssuer(apiKey, apiSecret, wsURL string) *CallTokenIssuer {
	return &CallTokenIssuer{apiKey: apiKey, apiSecret: apiSecret, wsURL: wsURL}
}

// JoinInfo is what a participant needs to enter a session's media room.
type JoinInfo struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// RoomName derives the media room for a session. Rooms are created on
// demand when the first participant joins.
func RoomName(sessionID string) string {
	return "tutorlink-session-" + sessionID
}

// Issue mints a one-hour join token for a session participant.
func (i *CallTokenIssuer) Issue(sessionID, userID, name string) (*JoinInfo, error) {
	room := RoomName(sessionID)
	identity := "user-" + userID

	at := lkauth.NewAccessToken(i.apiKey, i.apiSecret)
	grant := &lkauth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate join token: %w", err)
	}

	return &JoinInfo{
		URL:      i.wsURL,
		Token:    token,
		Room:     room,
		Identity: identity,
	}, nil
}
