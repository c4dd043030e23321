// Package realtime is a thin client for a speech-to-speech model session over
// a websocket. The model is an opaque capability: it accepts audio and text,
// performs its own turn-completion detection, and emits audio, transcripts,
// and tool-call intents.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rawi-voice/rawi/pkg/tools"
)

const (
	defaultBaseURL      = "wss://api.openai.com/v1/realtime"
	defaultWriteTimeout = 5 * time.Second
	connectTimeout      = 15 * time.Second
)

// SessionConfig describes one model session.
type SessionConfig struct {
	Model        string
	Voice        string
	Instructions string
	Tools        []tools.Declaration

	// Turn-completion eagerness for the model's semantic VAD. Low waits for
	// a longer pause before declaring the utterance complete.
	Eagerness string

	// InterruptResponse lets the model's VAD cut off an in-progress response
	// when the user starts speaking. Off by default: user speech during a
	// response is transcribed but does not cancel it.
	InterruptResponse bool
}

type Client struct {
	apiKey  string
	baseURL string
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

func NewClient(apiKey, baseURL string, logger *slog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  &websocket.Dialer{HandshakeTimeout: connectTimeout},
		logger:  logger,
	}
}

// Connect opens a model session and pushes the session configuration (voice,
// instructions, tool declarations, turn detection) before returning.
func (c *Client) Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	query := endpoint.Query()
	query.Set("model", cfg.Model)
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	s := &Session{
		conn:   conn,
		events: make(chan Event, 64),
		logger: c.logger,
	}
	if err := s.sendSessionUpdate(cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure session: %w", err)
	}
	go s.readLoop()
	return s, nil
}

// Session is one live connection to the speech model.
type Session struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
}

// Events delivers decoded server events. The channel closes after a terminal
// EventDisconnected.
func (s *Session) Events() <-chan Event {
	return s.events
}

// AppendAudio streams one frame of user microphone audio (PCM16LE) into the
// model's input buffer. Turn completion is the model's decision.
func (s *Session) AppendAudio(pcm []byte) error {
	return s.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// SendText injects a user text message and asks the model to respond. Used
// for text-only mode and for replaying speech buffered during a response.
func (s *Session) SendText(text string) error {
	err := s.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
	if err != nil {
		return err
	}
	return s.CreateResponse("")
}

// CreateResponse asks the model to generate. Instructions, when non-empty,
// steer only this response.
func (s *Session) CreateResponse(instructions string) error {
	response := map[string]any{}
	if strings.TrimSpace(instructions) != "" {
		response["instructions"] = instructions
	}
	return s.sendJSON(map[string]any{
		"type":     "response.create",
		"response": response,
	})
}

// SendToolResult splices a tool call outcome back into the conversation.
// Generation does not resume until the caller issues CreateResponse.
func (s *Session) SendToolResult(callID, output string) error {
	return s.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// CancelResponse aborts the in-progress model response, if any.
func (s *Session) CancelResponse() error {
	return s.sendJSON(map[string]any{"type": "response.cancel"})
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) sendSessionUpdate(cfg SessionConfig) error {
	eagerness := strings.TrimSpace(cfg.Eagerness)
	if eagerness == "" {
		eagerness = "low"
	}

	declarations := make([]map[string]any, 0, len(cfg.Tools))
	for _, decl := range cfg.Tools {
		declarations = append(declarations, map[string]any{
			"type":        "function",
			"name":        decl.Name,
			"description": decl.Description,
			"parameters":  decl.Parameters,
		})
	}

	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"instructions":        cfg.Instructions,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"input_audio_transcription": map[string]any{
			"model": "whisper-1",
		},
		"turn_detection": map[string]any{
			"type":               "semantic_vad",
			"eagerness":          eagerness,
			"interrupt_response": cfg.InterruptResponse,
			"create_response":    true,
		},
		"tools": declarations,
	}
	if strings.TrimSpace(cfg.Voice) != "" {
		session["voice"] = cfg.Voice
	}
	return s.sendJSON(map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

func (s *Session) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal client event: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write client event: %w", err)
	}
	return nil
}

// serverEvent is the superset of wire fields the read loop cares about.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.events <- Event{Type: EventDisconnected, Err: err}
			return
		}

		var raw serverEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			s.logger.Warn("undecodable server event", "error", err)
			continue
		}

		switch raw.Type {
		case "session.created":
			s.events <- Event{Type: EventSessionCreated}
		case "input_audio_buffer.speech_started":
			s.events <- Event{Type: EventSpeechStarted}
		case "input_audio_buffer.speech_stopped":
			s.events <- Event{Type: EventSpeechStopped}
		case "conversation.item.input_audio_transcription.completed":
			s.events <- Event{Type: EventInputTranscript, Transcript: raw.Transcript}
		case "response.created":
			s.events <- Event{Type: EventResponseStarted}
		case "response.audio.delta":
			audio, err := base64.StdEncoding.DecodeString(raw.Delta)
			if err != nil {
				s.logger.Warn("undecodable audio delta", "error", err)
				continue
			}
			s.events <- Event{Type: EventAudioDelta, Audio: audio}
		case "response.audio_transcript.delta":
			s.events <- Event{Type: EventTranscriptDelta, Text: raw.Delta}
		case "response.function_call_arguments.done":
			s.events <- Event{Type: EventToolCall, CallID: raw.CallID, Tool: raw.Name, ArgsJSON: raw.Arguments}
		case "response.done":
			s.events <- Event{Type: EventResponseDone}
		case "error":
			message := "model error"
			if raw.Error != nil {
				message = raw.Error.Message
			}
			s.events <- Event{Type: EventError, Err: fmt.Errorf("%s", message)}
		default:
			// Unknown event types are expected; the protocol is larger than
			// what the orchestrator consumes.
		}
	}
}
