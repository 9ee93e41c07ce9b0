package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/mfateev/temporal-agent-loop/internal/instructions"
	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// BuildSystemPromptInput is the input for BuildSystemPrompt.
type BuildSystemPromptInput struct {
	Model models.ModelConfig `json:"model"`

	// Base replaces the default guidance when non-empty.
	Base string `json:"base,omitempty"`

	// Cwd overrides the worker workspace.
	Cwd string `json:"cwd,omitempty"`
}

// BuildSystemPromptOutput carries the composed system prompt.
type BuildSystemPromptOutput struct {
	SystemPrompt string `json:"system_prompt"`
	ProjectDocs  bool   `json:"project_docs"`
}

// BuildSystemPrompt composes the system prompt on the worker, where the
// project docs live. Doc discovery problems are logged and skipped.
func (a *SessionActivities) BuildSystemPrompt(ctx context.Context, in BuildSystemPromptInput) (BuildSystemPromptOutput, error) {
	cwd := in.Cwd
	if cwd == "" {
		cwd = a.deps.Cwd
	}
	profile := a.deps.Profiles.Resolve(in.Model.Provider, in.Model.Model)

	var docs string
	if cwd != "" {
		var err error
		docs, err = instructions.ForWorkspace(cwd, profile.ProjectDocNames)
		if err != nil {
			activity.GetLogger(ctx).Warn("Project docs not loaded", "cwd", cwd, "error", err)
			docs = ""
		}
	}

	return BuildSystemPromptOutput{
		SystemPrompt: instructions.Compose(instructions.Input{
			Base:         in.Base,
			Cwd:          cwd,
			ProjectDocs:  docs,
			PromptSuffix: profile.PromptSuffix,
			Now:          time.Now(),
		}),
		ProjectDocs: docs != "",
	}, nil
}
