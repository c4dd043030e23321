package realtime

// EventType enumerates the server events the orchestrator reacts to. The wire
// protocol has many more; everything else is ignored at decode time.
type EventType string

const (
	EventSessionCreated  EventType = "session_created"
	EventSpeechStarted   EventType = "speech_started"
	EventSpeechStopped   EventType = "speech_stopped"
	EventInputTranscript EventType = "input_transcript"
	EventResponseStarted EventType = "response_started"
	EventAudioDelta      EventType = "audio_delta"
	EventTranscriptDelta EventType = "transcript_delta"
	EventToolCall        EventType = "tool_call"
	EventResponseDone    EventType = "response_done"
	EventError           EventType = "error"
	EventDisconnected    EventType = "disconnected"
)

// Event is one decoded server event. Only the fields relevant to the event
// type are populated.
type Event struct {
	Type       EventType
	Transcript string // EventInputTranscript
	Text       string // EventTranscriptDelta
	Audio      []byte // EventAudioDelta, decoded PCM
	CallID     string // EventToolCall
	Tool       string // EventToolCall
	ArgsJSON   string // EventToolCall, raw JSON arguments
	Err        error  // EventError, EventDisconnected
}
