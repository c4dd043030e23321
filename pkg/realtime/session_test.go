package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rawi-voice/rawi/pkg/tools"
)

var upgrader = websocket.Upgrader{}

// fakeModelServer upgrades one connection, captures client events, and plays
// back a scripted list of server events after the session.update arrives.
func fakeModelServer(t *testing.T, script []string, captured chan<- map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header=%q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// First client event must be the session configuration.
		var first map[string]any
		if err := conn.ReadJSON(&first); err != nil {
			t.Errorf("read session.update: %v", err)
			return
		}
		captured <- first

		for _, event := range script {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
				return
			}
		}

		// Keep capturing until the client hangs up.
		for {
			var event map[string]any
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			captured <- event
		}
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func collectEvents(t *testing.T, session *Session, want int) []Event {
	t.Helper()
	events := make([]Event, 0, want)
	deadline := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				t.Fatalf("events channel closed after %d events, want %d", len(events), want)
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out after %d events, want %d", len(events), want)
		}
	}
	return events
}

func TestConnect_SendsSessionConfiguration(t *testing.T) {
	captured := make(chan map[string]any, 16)
	ts := fakeModelServer(t, nil, captured)
	defer ts.Close()

	client := NewClient("key", wsURL(ts), nil)
	session, err := client.Connect(context.Background(), SessionConfig{
		Model:        "gpt-4o-realtime-preview",
		Voice:        "alloy",
		Instructions: "أنت مساعد ذكي يتحدث العربية بطلاقة.",
		Tools:        tools.Declarations(),
		Eagerness:    "low",
	})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer session.Close()

	update := <-captured
	if update["type"] != "session.update" {
		t.Fatalf("first event type=%v, want session.update", update["type"])
	}
	sessionCfg, _ := update["session"].(map[string]any)
	if sessionCfg == nil {
		t.Fatal("session.update carries no session object")
	}
	turnDetection, _ := sessionCfg["turn_detection"].(map[string]any)
	if turnDetection == nil {
		t.Fatal("session.update carries no turn_detection")
	}
	if turnDetection["eagerness"] != "low" {
		t.Fatalf("eagerness=%v, want low", turnDetection["eagerness"])
	}
	if turnDetection["interrupt_response"] != false {
		t.Fatalf("interrupt_response=%v, want false", turnDetection["interrupt_response"])
	}
	declared, _ := sessionCfg["tools"].([]any)
	if len(declared) != 3 {
		t.Fatalf("declared tools=%d, want 3", len(declared))
	}
}

func TestSession_DecodesServerEvents(t *testing.T) {
	script := []string{
		`{"type":"session.created"}`,
		`{"type":"input_audio_buffer.speech_started"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","transcript":"ما هو الطقس في الرباط؟"}`,
		`{"type":"response.created"}`,
		`{"type":"response.function_call_arguments.done","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"Rabat\"}"}`,
		`{"type":"response.audio_transcript.delta","delta":"الطقس"}`,
		`{"type":"some.future.event"}`,
		`{"type":"response.done"}`,
	}
	captured := make(chan map[string]any, 16)
	ts := fakeModelServer(t, script, captured)
	defer ts.Close()

	client := NewClient("key", wsURL(ts), nil)
	session, err := client.Connect(context.Background(), SessionConfig{Model: "gpt-4o-realtime-preview"})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer session.Close()

	events := collectEvents(t, session, 7)
	wantTypes := []EventType{
		EventSessionCreated,
		EventSpeechStarted,
		EventInputTranscript,
		EventResponseStarted,
		EventToolCall,
		EventTranscriptDelta,
		EventResponseDone,
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Fatalf("event[%d].Type=%q, want %q", i, events[i].Type, want)
		}
	}
	if events[2].Transcript != "ما هو الطقس في الرباط؟" {
		t.Fatalf("transcript=%q", events[2].Transcript)
	}
	toolCall := events[4]
	if toolCall.CallID != "call_1" || toolCall.Tool != "get_weather" {
		t.Fatalf("tool call=%+v", toolCall)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(toolCall.ArgsJSON), &args); err != nil {
		t.Fatalf("tool arguments undecodable: %v", err)
	}
	if args["city"] != "Rabat" {
		t.Fatalf("city=%v", args["city"])
	}
}

func TestSession_ToolResultRoundTrip(t *testing.T) {
	captured := make(chan map[string]any, 16)
	ts := fakeModelServer(t, nil, captured)
	defer ts.Close()

	client := NewClient("key", wsURL(ts), nil)
	session, err := client.Connect(context.Background(), SessionConfig{Model: "gpt-4o-realtime-preview"})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer session.Close()

	<-captured // session.update

	if err := session.SendToolResult("call_1", "الطقس في الرباط: مشمس"); err != nil {
		t.Fatalf("SendToolResult error: %v", err)
	}
	if err := session.CreateResponse(""); err != nil {
		t.Fatalf("CreateResponse error: %v", err)
	}

	item := <-captured
	if item["type"] != "conversation.item.create" {
		t.Fatalf("event type=%v", item["type"])
	}
	payload, _ := item["item"].(map[string]any)
	if payload["call_id"] != "call_1" {
		t.Fatalf("call_id=%v", payload["call_id"])
	}
	if payload["type"] != "function_call_output" {
		t.Fatalf("item type=%v", payload["type"])
	}

	create := <-captured
	if create["type"] != "response.create" {
		t.Fatalf("event type=%v, want response.create", create["type"])
	}
}

func TestSession_DisconnectIsTerminal(t *testing.T) {
	captured := make(chan map[string]any, 16)
	ts := fakeModelServer(t, []string{`{"type":"session.created"}`}, captured)

	client := NewClient("key", wsURL(ts), nil)
	session, err := client.Connect(context.Background(), SessionConfig{Model: "gpt-4o-realtime-preview"})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer session.Close()

	collectEvents(t, session, 1)
	ts.CloseClientConnections()
	ts.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return // closed after the terminal disconnect
			}
			if ev.Type == EventDisconnected {
				if ev.Err == nil {
					t.Fatal("disconnect event carries no error")
				}
				continue
			}
		case <-deadline:
			t.Fatal("no disconnect event observed")
		}
	}
}
