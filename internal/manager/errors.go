package manager

import (
	"errors"
	"fmt"

	"github.com/danabrams/codegen/internal/completion"
)

var (
	// ErrEmptyPrompt is returned when a turn is submitted without text.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrTurnInFlight is returned when a session already has a pending turn.
	ErrTurnInFlight = errors.New("a response is still being generated for this chat")
	// ErrLastSession is returned when deleting the only session.
	ErrLastSession = errors.New("cannot delete the last remaining chat")
	// ErrNoActiveSession is returned before Init has selected a session.
	ErrNoActiveSession = errors.New("no active chat")
)

const connectivityHelp = `Sorry, I encountered an error connecting to the AI service.
This could be due to:
• Network connectivity issues
• Temporary server unavailability
• A protocol error on the connection

Try again in a moment. If this persists, check the API base URL in settings.`

// UserMessage renders err for display in place of an assistant reply.
func UserMessage(err error) string {
	var netErr *completion.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Sprintf("%s\n\nTechnical error: %v", connectivityHelp, netErr)
	}
	var apiErr *completion.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
