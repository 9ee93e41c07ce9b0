package workflow

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/mfateev/temporal-agent-loop/internal/llm"
)

// registerHandlers registers the query and update handlers. Handlers only
// touch session state; the main loop picks the changes up at its next await.
func (s *session) registerHandlers(ctx workflow.Context) error {
	if err := workflow.SetQueryHandler(ctx, QueryGetStatus, func() (SessionStatus, error) {
		return s.status(), nil
	}); err != nil {
		return fmt.Errorf("register %s: %w", QueryGetStatus, err)
	}

	err := workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateUserInput,
		func(ctx workflow.Context, input UserInput) (UserInputAccepted, error) {
			s.pending = append(s.pending, input.Content)
			return UserInputAccepted{Turn: s.turnCount + len(s.pending)}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, input UserInput) error {
				if input.Content == "" {
					return errors.New("content must not be empty")
				}
				if s.shutdown {
					return errors.New("session is shutting down")
				}
				return nil
			},
		},
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", UpdateUserInput, err)
	}

	err = workflow.SetUpdateHandler(ctx, UpdateShutdown,
		func(ctx workflow.Context, _ ShutdownRequest) (ShutdownResponse, error) {
			s.shutdown = true
			return ShutdownResponse{Pending: len(s.pending)}, nil
		})
	if err != nil {
		return fmt.Errorf("register %s: %w", UpdateShutdown, err)
	}

	err = workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateModel,
		func(ctx workflow.Context, req UpdateModelRequest) (UpdateModelResponse, error) {
			prev := s.model
			s.model.Provider = req.Provider
			s.model.Model = req.Model
			// The prompt suffix and project doc names follow the profile.
			s.systemPrompt = ""
			workflow.GetLogger(ctx).Info("Model updated",
				"provider", req.Provider, "model", req.Model, "previous", prev.Model)
			return UpdateModelResponse{Previous: prev}, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req UpdateModelRequest) error {
				switch req.Provider {
				case llm.ProviderAnthropic, llm.ProviderOpenAI, llm.ProviderGemini:
				default:
					return fmt.Errorf("unsupported provider %q", req.Provider)
				}
				if req.Model == "" {
					return errors.New("model must not be empty")
				}
				return nil
			},
		},
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", UpdateModel, err)
	}
	return nil
}
