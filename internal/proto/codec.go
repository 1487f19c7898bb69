package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownTag is returned by Decode when a line's "tag" field does not
// name a known variant.
var ErrUnknownTag = errors.New("unknown message tag")

type envelope struct {
	Tag string `json:"tag"`
}

// Decode parses one line (without its trailing newline) into the concrete
// Message variant named by its "tag" field.
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var target Message
	switch env.Tag {
	case TagVersionMessage:
		target = &VersionMessage{}
	case TagLogin:
		target = &Login{}
	case TagAddPlayer:
		target = &AddPlayer{}
	case TagGameQuery:
		target = &GameQuery{}
	case TagGameInit:
		target = &GameInit{}
	case TagGameJoin:
		target = &GameJoin{}
	case TagGameLeave:
		target = &GameLeave{}
	case TagGameClosedByHost:
		target = &GameClosedByHost{}
	case TagGameConfig:
		target = &GameConfig{}
	case TagPlayerConfig:
		target = &PlayerConfig{}
	case TagGameStart:
		target = &GameStart{}
	case TagGameStartedByHost:
		target = &GameStartedByHost{}
	case TagGameOver:
		target = &GameOver{}
	case TagLogout:
		target = &Logout{}
	case TagChatFromClient:
		target = &ChatFromClient{}
	case TagChatFromThread:
		target = &ChatFromThread{}
	case TagBroadcast:
		target = &Broadcast{}
	case TagGameInfo:
		target = &GameInfo{}
	case TagMessage:
		target = &Ack{}
	case TagError:
		target = &ErrorMessage{}
	case TagGameQueryAnswer:
		target = &GameQueryAnswer{}
	case TagGameInfoAnswer:
		target = &GameInfoAnswer{}
	case TagGameStartAnswer:
		target = &GameStartAnswer{}
	case TagChatOut:
		target = &ChatOut{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, env.Tag)
	}

	if err := json.Unmarshal(line, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Tag, err)
	}
	return target, nil
}

// Encode renders a Message as one line, terminated with a line feed.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return append(data, '\n'), nil
}
