// Package backend is the transport adapter for the documentation service.
package backend

import (
	"context"

	"repodesk/internal/model"
)

// Task states reported by the status endpoint. Anything that is not SUCCESS
// or FAILURE is treated as still running.
const (
	StatePending = "PENDING"
	StateStarted = "STARTED"
	StateRetry   = "RETRY"
	StateSuccess = "SUCCESS"
	StateFailure = "FAILURE"
)

// Backend is the client-observable contract of the documentation service.
type Backend interface {
	SubmitClone(ctx context.Context, repoURL string) (string, error)
	TaskStatus(ctx context.Context, taskID string) (TaskStatus, error)

	ListRepositories(ctx context.Context) ([]model.Repository, error)
	UpdateRepository(ctx context.Context, id string, patch model.RepositoryPatch) error
	DeleteRepository(ctx context.Context, id string) error

	GenerateDocumentation(ctx context.Context, repoIDs []string) (GenerateResponse, error)
	SavePrompt(ctx context.Context, repoID, prompt string) (PromptResponse, error)

	ListDocumentation(ctx context.Context) ([]model.Documentation, error)
	GetDocumentation(ctx context.Context, id string) (model.Documentation, error)
	DeleteDocumentation(ctx context.Context, ids []string) (DeleteDocumentationResponse, error)
	RegenerateDocumentation(ctx context.Context, ids []string) (RegenerateDocumentationResponse, error)
	SearchDocumentation(ctx context.Context, query string) ([]model.SearchHit, error)
	UpdateGoal(ctx context.Context, docID, goal string) error

	GeneralPrompt(ctx context.Context) (string, error)
	SaveGeneralPrompt(ctx context.Context, prompt string) error
	GeneralSettings(ctx context.Context) (model.GeneralSettings, error)
	SaveGeneralSettings(ctx context.Context, s model.GeneralSettings) (model.GeneralSettings, error)

	ListTemplates(ctx context.Context) ([]model.Template, error)
	CreateTemplate(ctx context.Context, tpl model.Template) (model.Template, error)
	UpdateTemplate(ctx context.Context, id string, patch model.TemplatePatch) (model.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// TaskStatus is one observation of an asynchronous job.
type TaskStatus struct {
	TaskID string         `json:"task_id"`
	State  string         `json:"state"`
	Result map[string]any `json:"result,omitempty"`
}

// Terminal reports whether the observed state is final.
func (s TaskStatus) Terminal() bool {
	return s.State == StateSuccess || s.State == StateFailure
}

// TerminalResult converts a final status into the model's tagged result.
// A SUCCESS whose payload carries status "error" is a failure: the clone
// worker reports rejected duplicates that way.
func (s TaskStatus) TerminalResult() model.TerminalResult {
	switch s.State {
	case StateSuccess:
		if model.AnyString(s.Result["status"]) == "error" {
			return model.Failure(firstNonEmpty(
				model.AnyString(s.Result["message"]),
				model.AnyString(s.Result["error"]),
				"task reported an error",
			))
		}
		return model.Success(s.Result)
	default:
		return model.Failure(firstNonEmpty(
			model.AnyString(s.Result["error"]),
			model.AnyString(s.Result["message"]),
			"task failed",
		))
	}
}

// Status values of the generate response.
const (
	GenerateOK      = "ok"
	GeneratePartial = "partial_success"
	GenerateError   = "error"
)

// GenerateResponse is the batched answer of a documentation generation job.
type GenerateResponse struct {
	Status          string           `json:"status"`
	Message         string           `json:"message"`
	Results         []GenerateResult `json:"results"`
	Errors          []string         `json:"errors,omitempty"`
	SuccessfulCount int              `json:"successful_count"`
}

// GenerateResult is one per-repository entry; failed entries carry no
// repository name, only a message.
type GenerateResult struct {
	Status        string            `json:"status"`
	Repository    string            `json:"repository,omitempty"`
	PromptID      FlexID            `json:"prompt_id,omitempty"`
	Message       string            `json:"message,omitempty"`
	Documentation *GeneratedContent `json:"documentation,omitempty"`
}

func (r GenerateResult) Documented() bool {
	return r.Status == "documented"
}

type GeneratedContent struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

// PromptResponse carries the regeneration task queued by a prompt save.
type PromptResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// DeleteDocumentationResponse reports how many of the requested documents were
// cleared; Errors names the ones that were not.
type DeleteDocumentationResponse struct {
	Status       string   `json:"status"`
	DeletedCount int      `json:"deleted_count"`
	Errors       []string `json:"errors,omitempty"`
}

// RegenerateDocumentationResponse reports how many documents were rebuilt
// from their repositories; Errors names the ones that were not.
type RegenerateDocumentationResponse struct {
	Status       string   `json:"status"`
	UpdatedCount int      `json:"updated_count"`
	Errors       []string `json:"errors,omitempty"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
