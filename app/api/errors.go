package api

import (
	"errors"
	"fmt"
	"log"

	"sysrev/app/agent"
	"sysrev/model"
	"sysrev/store"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler maps every error kind escaping a handler to a structured JSON
// response. Nothing here crashes the process.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	var (
		loadErr  store.IndexLoadError
		queryErr store.InvalidQueryError
		embedErr model.EmbeddingError
		synthErr agent.SynthesisError
	)
	switch {
	case errors.As(err, &loadErr):
		return c.Status(fiber.StatusNotFound).JSON(NewError(fiber.StatusNotFound,
			fmt.Sprintf("%v; please re-upload your papers", loadErr)))
	case errors.As(err, &queryErr):
		return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, queryErr.Error()))
	case errors.As(err, &embedErr):
		return c.Status(fiber.StatusBadGateway).JSON(NewError(fiber.StatusBadGateway, embedErr.Error()))
	case errors.As(err, &synthErr):
		return c.Status(fiber.StatusBadGateway).JSON(NewError(fiber.StatusBadGateway, synthErr.Error()))
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	apiError := NewError(code, err.Error())
	log.Printf("Request failed with code %d and message: %s", apiError.Code, apiError.Message)
	return c.Status(apiError.Code).JSON(apiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
