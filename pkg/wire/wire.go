// Package wire defines the JSON frames exchanged between the writing pad and
// a suggestion service over a websocket.
//
// Every websocket text message carries one Frame. After the upgrade the
// server sends a connected frame holding the session id. The client then
// subscribes to TopicSynonyms and publishes lookups to TopicSuggest. Replies
// arrive as message frames on TopicSynonyms.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TopicSuggest  = "/app/synonyms"
	TopicSynonyms = "/user/queue/synonyms"
)

// Frame types.
const (
	TypeConnected = "connected"
	TypeSubscribe = "subscribe"
	TypePublish   = "publish"
	TypeMessage   = "message"
	TypeError     = "error"
)

var (
	ErrMalformedResponse = errors.New("malformed suggestion response")
	ErrMalformedRequest  = errors.New("malformed suggestion request")
	ErrLookupFailed      = errors.New("suggestion lookup failed")
)

type Frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	ID      uint64          `json:"id,omitempty"`
	Session string          `json:"session,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type SuggestionRequest struct {
	Word string `json:"word"`
}

type SuggestionResponse struct {
	Synonyms    []string `json:"synonyms"`
	Explanation string   `json:"explanation"`
}

// Message is a decoded reply handed to the subscriber. ID is zero when the
// server did not echo the request id. Err is set when the server answered
// with an error frame or the reply body could not be decoded; Response is
// empty then.
type Message struct {
	ID       uint64
	Response SuggestionResponse
	Err      error
}

func Connected(session string) Frame {
	return Frame{Type: TypeConnected, Session: session}
}

func Subscribe(topic string) Frame {
	return Frame{Type: TypeSubscribe, Topic: topic}
}

// Publish builds a publish frame for body. A zero id is left out of the
// encoded frame.
func Publish(topic string, id uint64, body any) (Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s body: %w", topic, err)
	}
	return Frame{Type: TypePublish, Topic: topic, ID: id, Body: raw}, nil
}

// Deliver builds a message frame carrying body for a subscriber of topic.
func Deliver(topic string, id uint64, body any) (Frame, error) {
	f, err := Publish(topic, id, body)
	f.Type = TypeMessage
	return f, err
}

// Failed turns an error frame into the Message a subscriber sees.
func Failed(f Frame) Message {
	return Message{ID: f.ID, Err: fmt.Errorf("%w: %s", ErrLookupFailed, f.Error)}
}

func Failure(id uint64, err error) Frame {
	return Frame{Type: TypeError, ID: id, Error: err.Error()}
}

func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("failed to decode frame: missing type")
	}
	return f, nil
}

// DecodeResponse parses a synonyms body. The synonyms key is required; a
// null or absent list is malformed, an empty list is not.
func DecodeResponse(body []byte) (SuggestionResponse, error) {
	var raw struct {
		Synonyms    *[]string `json:"synonyms"`
		Explanation string    `json:"explanation"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return SuggestionResponse{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if raw.Synonyms == nil {
		return SuggestionResponse{}, fmt.Errorf("%w: missing synonyms", ErrMalformedResponse)
	}
	return SuggestionResponse{Synonyms: *raw.Synonyms, Explanation: raw.Explanation}, nil
}

// DecodeRequest parses a lookup body published by a client.
func DecodeRequest(body []byte) (SuggestionRequest, error) {
	var req SuggestionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return SuggestionRequest{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if req.Word == "" {
		return SuggestionRequest{}, fmt.Errorf("%w: missing word", ErrMalformedRequest)
	}
	return req, nil
}
