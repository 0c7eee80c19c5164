package surface

import "github.com/spencer-dollahite/clitutor/internal/executor"

// Event is delivered on Surface.Events.
type Event interface {
	event()
}

// CommandCompleted carries the captured result of a command typed into
// the shell.
type CommandCompleted struct {
	Result executor.CommandResult
}

// SlashCommand is a "/"-prefixed line the learner entered. It never
// reaches the shell.
type SlashCommand struct {
	Text string
}

// Disconnected reports that the shell exited. Respawn starts a new one.
type Disconnected struct {
	Err error
}

// Redraw reports that the grid changed.
type Redraw struct{}

func (CommandCompleted) event() {}
func (SlashCommand) event()     {}
func (Disconnected) event()     {}
func (Redraw) event()           {}
