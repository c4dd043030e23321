package session

// State is the orchestrator's position in the turn cycle.
type State string

const (
	StateIdle          State = "idle"
	StateListening     State = "listening"
	StateGenerating    State = "generating"
	StateAwaitingTools State = "awaiting_tools"
	StateResponding    State = "responding"
	StateInterrupted   State = "interrupted"
)

// Outcome records how a turn ended.
type Outcome string

const (
	OutcomeDirect        Outcome = "direct_answer"
	OutcomeToolAugmented Outcome = "tool_augmented_answer"
	OutcomeAborted       Outcome = "aborted"
)
