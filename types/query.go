package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

type QueryParams struct {
	SessionID    string `json:"session_id"`
	Question     string `json:"question" validate:"required"`
	IndexPath    string `json:"index_path" validate:"required"`
	MetadataPath string `json:"metadata_path" validate:"required"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *QueryParams) Validate() map[string]string {
	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// FailedPaper reports one file that could not be processed during an upload
// batch. The batch itself still succeeds with the remaining files.
type FailedPaper struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type UploadResponse struct {
	Status       string        `json:"status"`
	Message      string        `json:"message"`
	SessionID    string        `json:"session_id"`
	IndexPath    string        `json:"index_path"`
	MetadataPath string        `json:"metadata_path"`
	Papers       []string      `json:"papers"`
	Failed       []FailedPaper `json:"failed,omitempty"`
	TotalPapers  int           `json:"total_papers"`
	TokenUsage   TokenUsage    `json:"token_usage"`
}

type QueryResponse struct {
	Status         string     `json:"status"`
	Answer         string     `json:"answer"`
	PapersAnalyzed []string   `json:"papers_analyzed"`
	TokenUsage     TokenUsage `json:"token_usage"`
}
