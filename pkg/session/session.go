// Package session runs the turn orchestrator: the state machine that decides
// when user input is accepted, when tools may run, how their results re-enter
// the dialogue, and how barge-in is handled.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawi-voice/rawi/pkg/realtime"
	"github.com/rawi-voice/rawi/pkg/tools"
)

// ErrTransportDisconnected ends the session when the model connection drops.
// It ends this session only, never the process.
var ErrTransportDisconnected = errors.New("transport disconnected")

// ModelSession is the slice of the speech-model connection the orchestrator
// drives. Satisfied by *realtime.Session.
type ModelSession interface {
	Events() <-chan realtime.Event
	SendText(text string) error
	CreateResponse(instructions string) error
	SendToolResult(callID, output string) error
	CancelResponse() error
}

// ToolDispatcher fans out a batch of tool calls and yields results in
// completion order. Satisfied by *tools.Dispatcher.
type ToolDispatcher interface {
	DispatchAll(ctx context.Context, reqs []tools.Request) <-chan tools.Result
}

type Config struct {
	// AllowInterruptions cancels the in-flight response and its tool calls
	// when the user starts speaking. Off by default: new speech is buffered
	// as the next turn's input and the current response finishes.
	AllowInterruptions bool

	// Greeting, when non-empty, is sent as response instructions at session
	// start so the agent opens the conversation.
	Greeting string
}

type Dependencies struct {
	Model         ModelSession
	Dispatcher    ToolDispatcher
	AudioOut      io.Writer // speaker sink; nil in text-only mode
	TranscriptOut io.Writer // agent speech transcript sink; nil to discard
	Logger        *slog.Logger
	Config        Config
	Now           func() time.Time
}

// Turn is one user-utterance-to-agent-response cycle.
type Turn struct {
	ID         string
	StartedAt  time.Time
	EndedAt    time.Time
	Transcript string
	Outcome    Outcome

	toolCalls int
}

// Usage accumulates per-session counters, logged once at session end.
type Usage struct {
	Turns        int
	ToolCalls    int
	ToolFailures int
	ToolTimeouts int
	AudioFrames  int
}

// Session owns all mutable per-conversation state. One Session is processed
// by a single logical flow of control: Run's event loop is the only writer.
type Session struct {
	id            string
	model         ModelSession
	dispatcher    ToolDispatcher
	audioOut      io.Writer
	transcriptOut io.Writer
	logger        *slog.Logger
	cfg           Config
	now           func() time.Time

	mu    sync.RWMutex
	state State

	turn          *Turn
	turnCtx       context.Context
	turnCancel    context.CancelFunc
	pending       map[string]struct{} // outstanding call ids for the current turn
	batch         []tools.Request     // collected this response, dispatched at response end
	bufferedInput string              // speech that arrived mid-response, next turn's input
	results       chan tools.Result
	usage         Usage
}

func New(deps Dependencies) (*Session, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("model session is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Session{
		id:            uuid.NewString(),
		model:         deps.Model,
		dispatcher:    deps.Dispatcher,
		audioOut:      deps.AudioOut,
		transcriptOut: deps.TranscriptOut,
		cfg:           deps.Config,
		now:           deps.Now,
		state:         StateIdle,
		pending:       make(map[string]struct{}),
		results:       make(chan tools.Result, 16),
	}
	s.logger = deps.Logger.With("session_id", s.id)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State reports the current orchestrator state. Safe to call concurrently
// with Run.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.logger.Debug("state transition", "from", string(prev), "to", string(next))
	}
}

// Usage returns a copy of the session counters.
func (s *Session) Usage() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// Run drives the session until the context is cancelled or the transport
// disconnects. It is the single flow of control for all session state.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateListening)
	if s.cfg.Greeting != "" {
		if err := s.model.CreateResponse(s.cfg.Greeting); err != nil {
			s.logger.Warn("greeting failed", "error", err)
		}
	}

	defer s.logUsage()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-s.results:
			s.handleResult(result)
		case event, ok := <-s.model.Events():
			if !ok {
				return ErrTransportDisconnected
			}
			if done, err := s.handleEvent(ctx, event); done {
				return err
			}
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, event realtime.Event) (bool, error) {
	switch event.Type {
	case realtime.EventSessionCreated:
		s.logger.Info("model session created")

	case realtime.EventSpeechStarted:
		s.onSpeechStarted()

	case realtime.EventSpeechStopped:
		// Turn completion is signalled by the transcript, not by silence.

	case realtime.EventInputTranscript:
		s.onUserUtterance(ctx, event.Transcript)

	case realtime.EventResponseStarted:
		if s.State() == StateListening {
			s.setState(StateGenerating)
		}

	case realtime.EventToolCall:
		s.onToolCall(ctx, event)

	case realtime.EventAudioDelta:
		s.onAudio(event.Audio)

	case realtime.EventTranscriptDelta:
		if s.transcriptOut != nil {
			_, _ = io.WriteString(s.transcriptOut, event.Text)
		}

	case realtime.EventResponseDone:
		s.onResponseDone(ctx)

	case realtime.EventError:
		// Model-reported errors are turn-scoped; the session continues.
		s.logger.Warn("model error", "error", event.Err)

	case realtime.EventDisconnected:
		s.logger.Info("model disconnected", "error", event.Err)
		return true, ErrTransportDisconnected
	}
	return false, nil
}

// onSpeechStarted applies the barge-in policy when the user speaks while the
// agent is generating, waiting on tools, or speaking.
func (s *Session) onSpeechStarted() {
	switch s.State() {
	case StateGenerating, StateAwaitingTools, StateResponding:
		if s.cfg.AllowInterruptions {
			s.interrupt()
			return
		}
		s.logger.Debug("barge-in during response, buffering as next turn input")
	default:
	}
}

// onUserUtterance reacts to a completed user utterance (the model's
// turn-completion signal).
func (s *Session) onUserUtterance(ctx context.Context, transcript string) {
	if s.State() == StateListening || s.State() == StateIdle {
		s.startTurn(ctx, transcript)
		return
	}
	// Interruptions disabled and the agent is mid-response: queue the new
	// speech as the next turn's input. The current turn completes untouched.
	s.mu.Lock()
	s.bufferedInput = transcript
	s.mu.Unlock()
	s.logger.Info("user speech buffered for next turn", "transcript", transcript)
}

func (s *Session) onToolCall(ctx context.Context, event realtime.Event) {
	turn := s.ensureTurn(ctx)

	arguments := map[string]any{}
	if event.ArgsJSON != "" {
		if err := json.Unmarshal([]byte(event.ArgsJSON), &arguments); err != nil {
			// Leave arguments empty; the dispatcher converts missing
			// required parameters into a failure result.
			s.logger.Warn("malformed tool arguments", "call_id", event.CallID, "error", err)
		}
	}

	if _, dup := s.pending[event.CallID]; dup {
		s.logger.Warn("duplicate tool call id ignored", "call_id", event.CallID)
		return
	}
	s.pending[event.CallID] = struct{}{}
	s.batch = append(s.batch, tools.Request{
		CallID:    event.CallID,
		Name:      event.Tool,
		Arguments: arguments,
		TurnID:    turn.ID,
	})
	turn.toolCalls++
	s.mu.Lock()
	s.usage.ToolCalls++
	s.mu.Unlock()
	s.logger.Info("tool call requested", "tool", event.Tool, "call_id", event.CallID, "turn_id", turn.ID)
}

func (s *Session) onAudio(pcm []byte) {
	s.mu.Lock()
	s.usage.AudioFrames++
	s.mu.Unlock()
	if s.State() == StateGenerating {
		s.setState(StateResponding)
	}
	if s.audioOut == nil {
		return
	}
	if _, err := s.audioOut.Write(pcm); err != nil {
		s.logger.Warn("audio playback failed", "error", err)
	}
}

// onResponseDone either dispatches the tool calls collected during the
// response or closes the turn.
func (s *Session) onResponseDone(ctx context.Context) {
	if s.transcriptOut != nil {
		_, _ = io.WriteString(s.transcriptOut, "\n")
	}
	if len(s.batch) > 0 {
		batch := s.batch
		s.batch = nil
		s.setState(StateAwaitingTools)

		dispatchCtx := s.turnCtx
		if dispatchCtx == nil {
			dispatchCtx = ctx
		}
		results := s.dispatcher.DispatchAll(dispatchCtx, batch)
		go func() {
			for result := range results {
				s.results <- result
			}
		}()
		return
	}

	s.finishTurn()
}

// handleResult consumes one tool result. Results for a closed or aborted
// turn are discarded without side effects; the barrier only releases once
// every outstanding call for the current turn has resolved.
func (s *Session) handleResult(result tools.Result) {
	current := s.turn
	if current == nil || result.TurnID != current.ID {
		s.logger.Info("stale tool result discarded", "call_id", result.CallID, "turn_id", result.TurnID)
		return
	}
	if _, outstanding := s.pending[result.CallID]; !outstanding {
		s.logger.Info("unexpected tool result discarded", "call_id", result.CallID)
		return
	}
	delete(s.pending, result.CallID)

	s.mu.Lock()
	switch result.Status {
	case tools.StatusFailure:
		s.usage.ToolFailures++
	case tools.StatusTimeout:
		s.usage.ToolTimeouts++
	}
	s.mu.Unlock()

	// Inject the result (degraded or not) as model-consumable context.
	if err := s.model.SendToolResult(result.CallID, result.Payload); err != nil {
		s.logger.Warn("tool result injection failed", "call_id", result.CallID, "error", err)
	}

	if len(s.pending) == 0 && s.State() == StateAwaitingTools {
		// Barrier released: every call resolved (success, failure, or
		// timeout). Generation resumes.
		s.setState(StateGenerating)
		if err := s.model.CreateResponse(""); err != nil {
			s.logger.Warn("resume generation failed", "error", err)
		}
	}
}

func (s *Session) startTurn(ctx context.Context, transcript string) {
	turnCtx, cancel := context.WithCancel(ctx)
	s.turn = &Turn{
		ID:         uuid.NewString(),
		StartedAt:  s.now(),
		Transcript: transcript,
	}
	s.turnCtx = turnCtx
	s.turnCancel = cancel
	s.setState(StateGenerating)
	s.logger.Info("turn started", "turn_id", s.turn.ID, "transcript", transcript)
}

// ensureTurn covers agent-initiated responses (greeting) that request tools
// without a preceding user utterance.
func (s *Session) ensureTurn(ctx context.Context) *Turn {
	if s.turn == nil {
		s.startTurn(ctx, "")
	}
	return s.turn
}

func (s *Session) finishTurn() {
	if s.turn != nil {
		outcome := OutcomeDirect
		if s.turn.toolCalls > 0 {
			outcome = OutcomeToolAugmented
		}
		s.closeTurn(outcome)
	}
	s.setState(StateListening)

	s.mu.Lock()
	buffered := s.bufferedInput
	s.bufferedInput = ""
	s.mu.Unlock()
	if buffered != "" {
		s.logger.Info("starting buffered turn", "transcript", buffered)
		if err := s.model.SendText(buffered); err != nil {
			s.logger.Warn("buffered turn failed", "error", err)
		}
	}
}

// interrupt aborts the current turn: the model response is cancelled and
// outstanding tool calls are removed from the pending set, so their eventual
// results are dropped by handleResult.
func (s *Session) interrupt() {
	s.setState(StateInterrupted)
	if err := s.model.CancelResponse(); err != nil {
		s.logger.Warn("response cancel failed", "error", err)
	}
	if s.turnCancel != nil {
		s.turnCancel()
	}
	for id := range s.pending {
		delete(s.pending, id)
	}
	s.batch = nil
	if s.turn != nil {
		s.closeTurn(OutcomeAborted)
	}
	s.setState(StateListening)
}

func (s *Session) closeTurn(outcome Outcome) {
	s.turn.EndedAt = s.now()
	s.turn.Outcome = outcome
	s.mu.Lock()
	s.usage.Turns++
	s.mu.Unlock()
	s.logger.Info("turn finished",
		"turn_id", s.turn.ID,
		"outcome", string(outcome),
		"tool_calls", s.turn.toolCalls,
		"duration_ms", s.turn.EndedAt.Sub(s.turn.StartedAt).Milliseconds())
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
		s.turnCtx = nil
	}
	s.turn = nil
}

func (s *Session) logUsage() {
	usage := s.Usage()
	s.logger.Info("session usage",
		"turns", usage.Turns,
		"tool_calls", usage.ToolCalls,
		"tool_failures", usage.ToolFailures,
		"tool_timeouts", usage.ToolTimeouts,
		"audio_frames", usage.AudioFrames)
}
