package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRunInProgress is returned when a run is started while one is active
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrNotReady is returned when the workflow does not meet readiness
	ErrNotReady = errors.New("workflow is not ready to run")
	// ErrRunTimeout marks a backend call that outlived the run timeout
	ErrRunTimeout = errors.New("workflow execution timed out")
	// ErrUnknownInput is returned when setting an input that does not exist
	ErrUnknownInput = errors.New("unknown input")
	// ErrClosed is returned after the orchestrator has been closed
	ErrClosed = errors.New("orchestrator closed")
)

// Category groups execution errors for user-facing messaging
type Category string

const (
	CategoryAuthentication Category = "auth"
	CategoryTimeout        Category = "timeout"
	CategoryModel          Category = "model"
	CategoryInput          Category = "input"
	CategoryGeneric        Category = "generic"
)

var categoryRules = []struct {
	category Category
	needles  []string
}{
	{CategoryAuthentication, []string{"API key", "authentication"}},
	{CategoryTimeout, []string{"timeout", "timed out"}},
	{CategoryModel, []string{"model", "OpenAI", "Anthropic", "Gemini", "Cohere", "Perplexity"}},
	{CategoryInput, []string{"parameter", "required field", "JSON"}},
}

// Categorize classifies an error message. The first matching rule wins.
func Categorize(message string) Category {
	for _, rule := range categoryRules {
		for _, needle := range rule.needles {
			if strings.Contains(message, needle) {
				return rule.category
			}
		}
	}
	return CategoryGeneric
}

// Title returns the heading shown for the category
func (c Category) Title() string {
	switch c {
	case CategoryAuthentication:
		return "Authentication Error"
	case CategoryTimeout:
		return "Timeout Error"
	case CategoryModel:
		return "AI Model Error"
	case CategoryInput:
		return "Input Error"
	default:
		return "Error"
	}
}

// Hint returns the remediation hint for the category
func (c Category) Hint() string {
	switch c {
	case CategoryAuthentication:
		return "Check that your API keys are correct and have sufficient permissions."
	case CategoryTimeout:
		return "Try simplifying your workflow or breaking it into smaller parts."
	case CategoryModel:
		return "The AI service may be experiencing issues. Check their status page or try a different model."
	case CategoryInput:
		return "Check that all required inputs are provided and in the correct format."
	default:
		return "Try rerunning the workflow or check the workflow configuration."
	}
}

// ValidationError carries every input violation found before a run
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("input validation failed: %s", strings.Join(e.Violations, "; "))
}

// timeoutError is the message shown when the backend outlives the run
// timeout. It matches ErrRunTimeout.
type timeoutError struct {
	after time.Duration
}

func (e *timeoutError) Error() string {
	return "Workflow execution timed out after " + describeTimeout(e.after)
}

func (e *timeoutError) Is(target error) bool {
	return target == ErrRunTimeout
}

// ExecutionError is a categorized run failure
type ExecutionError struct {
	Category Category
	Err      error
}

// NewExecutionError categorizes err
func NewExecutionError(err error) *ExecutionError {
	return &ExecutionError{Category: Categorize(err.Error()), Err: err}
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Hint returns the remediation hint for the error's category
func (e *ExecutionError) Hint() string {
	return e.Category.Hint()
}
