package conversation

// ContextWindow is the number of stored messages included in each request
// (two user/assistant pairs). It is deliberately smaller than TrimLimit.
const ContextWindow = 4

// SystemPrompt instructs the model to answer with an explanation followed by
// a single JavaScript code block.
const SystemPrompt = `You are a JavaScript code generation assistant. Respond in two clearly separated parts:

PART 1: EXPLANATION
Provide a clear explanation of the approach, concepts, and techniques you'll use to solve the problem.
Focus on explaining the logic and reasoning behind your solution.

PART 2: CODE
After your explanation, provide ONLY the executable JavaScript code inside a code block.
Format your code like this:
` + "```javascript\n// Your code here\n```" + `

Your code must be complete, self-contained, and ready to run in a browser environment.
Include helpful comments in your code to explain the logic.
Do not repeat explanations in the code block - keep all explanations in Part 1.
For the query user asks, you must generate JS code only.`

// PromptConfig configures how request contexts are built.
type PromptConfig struct {
	// SystemPrompt is always sent as the first message.
	SystemPrompt string

	// MaxMessages is the number of trailing history messages to include.
	MaxMessages int
}

// DefaultPromptConfig returns the standard code-generation configuration.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		SystemPrompt: SystemPrompt,
		MaxMessages:  ContextWindow,
	}
}

// PromptMessage is a message in the wire shape expected by the completion
// endpoint.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptBuilder builds request contexts from a session history.
type PromptBuilder struct {
	config PromptConfig
}

// NewPromptBuilder creates a new prompt builder with the given config.
func NewPromptBuilder(config PromptConfig) *PromptBuilder {
	return &PromptBuilder{config: config}
}

// Build returns the system message, the trailing window of history and the
// new user prompt, in that order. history is not modified.
func (b *PromptBuilder) Build(history []Message, prompt string) []PromptMessage {
	window := history
	if len(window) > b.config.MaxMessages {
		window = window[len(window)-b.config.MaxMessages:]
	}

	result := make([]PromptMessage, 0, len(window)+2)
	result = append(result, PromptMessage{Role: RoleSystem, Content: b.config.SystemPrompt})
	for _, msg := range window {
		result = append(result, PromptMessage{Role: msg.Role, Content: msg.Content})
	}
	result = append(result, PromptMessage{Role: RoleUser, Content: prompt})
	return result
}

// EstimateTokens provides a rough token count estimate for a string.
// Uses the approximation that 1 token ≈ 4 characters.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// EstimatePromptTokens estimates the total tokens of a built context.
func EstimatePromptTokens(messages []PromptMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content) + 4 // role overhead
	}
	return total
}
