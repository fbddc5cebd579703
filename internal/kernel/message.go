// SPDX-License-Identifier: MPL-2.0

package kernel

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// protocolVersion is the Jupyter messaging protocol version we speak.
const protocolVersion = "5.3"

// delimiter separates ZeroMQ routing identities from message frames.
var delimiter = []byte("<IDS|MSG>")

// ErrBadSignature indicates an incoming message failed HMAC verification.
var ErrBadSignature = errors.New("invalid message signature")

type (
	// Header is a Jupyter message header.
	Header struct {
		MsgID    string `json:"msg_id"`
		Username string `json:"username"`
		Session  string `json:"session"`
		Date     string `json:"date"`
		MsgType  string `json:"msg_type"`
		Version  string `json:"version"`
	}

	// Message is a Jupyter protocol message. Content is kept as a
	// generic map since its schema varies by message type.
	Message struct {
		Header   Header
		Parent   Header
		Metadata map[string]any
		Content  map[string]any

		// identities are the ZeroMQ routing frames, echoed on replies.
		identities [][]byte
	}

	// Signer computes and checks wire signatures using the connection
	// file's HMAC-SHA256 key. An empty key disables signing, as the
	// protocol allows.
	Signer struct {
		key []byte
	}
)

// NewSigner creates a Signer for the given connection key.
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign returns the lowercase hex HMAC over the four message frames.
func (s *Signer) Sign(header, parent, metadata, content []byte) string {
	if len(s.key) == 0 {
		return ""
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(header)
	mac.Write(parent)
	mac.Write(metadata)
	mac.Write(content)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the message frames.
func (s *Signer) Verify(signature string, header, parent, metadata, content []byte) bool {
	if len(s.key) == 0 {
		return true
	}
	expected := s.Sign(header, parent, metadata, content)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// NewMessage creates a request message of the given type for a session.
func NewMessage(msgType, session string, content map[string]any) *Message {
	if content == nil {
		content = map[string]any{}
	}
	return &Message{
		Header: Header{
			MsgID:    uuid.NewString(),
			Username: "nbrun",
			Session:  session,
			Date:     time.Now().UTC().Format(time.RFC3339),
			MsgType:  msgType,
			Version:  protocolVersion,
		},
		Metadata: map[string]any{},
		Content:  content,
	}
}

// Encode serializes the message into wire frames:
// identities..., delimiter, signature, header, parent, metadata, content.
func (m *Message) Encode(signer *Signer) ([][]byte, error) {
	header, err := json.Marshal(m.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	parent, err := json.Marshal(m.Parent)
	if err != nil {
		return nil, fmt.Errorf("encode parent header: %w", err)
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	frames := make([][]byte, 0, len(m.identities)+6)
	frames = append(frames, m.identities...)
	frames = append(frames,
		delimiter,
		[]byte(signer.Sign(header, parent, metadata, content)),
		header,
		parent,
		metadata,
		content,
	)
	return frames, nil
}

// Decode parses wire frames into a Message, verifying the signature.
func Decode(frames [][]byte, signer *Signer) (*Message, error) {
	sep := -1
	for i, f := range frames {
		if bytes.Equal(f, delimiter) {
			sep = i
			break
		}
	}
	if sep < 0 || len(frames) < sep+6 {
		return nil, fmt.Errorf("malformed message: %d frames, delimiter at %d", len(frames), sep)
	}

	signature := string(frames[sep+1])
	header, parent, metadata, content := frames[sep+2], frames[sep+3], frames[sep+4], frames[sep+5]

	if !signer.Verify(signature, header, parent, metadata, content) {
		return nil, ErrBadSignature
	}

	msg := &Message{identities: frames[:sep]}
	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if err := json.Unmarshal(parent, &msg.Parent); err != nil {
		return nil, fmt.Errorf("decode parent header: %w", err)
	}
	if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal(content, &msg.Content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return msg, nil
}

// str reads a string field from a content map, defaulting to "".
func str(content map[string]any, key string) string {
	if v, ok := content[key].(string); ok {
		return v
	}
	return ""
}
