package receiver

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Voice gateway opcodes the receiver consumes.
const (
	OpSpeaking         = 5
	OpVideo            = 12
	OpClientDisconnect = 13
)

type signalingMessage struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type speakingEvent struct {
	UserID   string `json:"user_id"`
	SSRC     uint32 `json:"ssrc"`
	Speaking int    `json:"speaking"`
}

type videoEvent struct {
	UserID    string `json:"user_id"`
	AudioSSRC uint32 `json:"audio_ssrc"`
	VideoSSRC uint32 `json:"video_ssrc"`
}

type disconnectEvent struct {
	UserID string `json:"user_id"`
}

// HandleSignaling applies one voice gateway message to the SSRC directory.
// Messages with other opcodes are ignored.
func (r *Receiver) HandleSignaling(message []byte) error {
	var msg signalingMessage
	if err := sonic.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSignaling, err)
	}

	switch msg.Op {
	case OpSpeaking:
		var ev speakingEvent
		if err := decodeEvent(msg.D, &ev); err != nil {
			return err
		}
		if ev.UserID == "" {
			return fmt.Errorf("%w: speaking event without user_id", ErrMalformedSignaling)
		}
		r.ssrcs.Update(UserData{UserID: ev.UserID, AudioSSRC: ev.SSRC})

	case OpVideo:
		var ev videoEvent
		if err := decodeEvent(msg.D, &ev); err != nil {
			return err
		}
		if ev.UserID == "" {
			return fmt.Errorf("%w: video event without user_id", ErrMalformedSignaling)
		}
		r.ssrcs.SetVideo(ev.UserID, ev.AudioSSRC, ev.VideoSSRC)

	case OpClientDisconnect:
		var ev disconnectEvent
		if err := decodeEvent(msg.D, &ev); err != nil {
			return err
		}
		r.ssrcs.DeleteByUser(ev.UserID)
	}
	return nil
}

func decodeEvent(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedSignaling)
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSignaling, err)
	}
	return nil
}
