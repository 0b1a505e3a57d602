// Package server provides HTTP and WebSocket handlers for the sound meter web interface.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

var validate = newValidator()

// newValidator reports fields by their JSON names so errors line up with
// what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// decodeRequest fills data from the command payload and validates it. An
// absent payload validates the zero value. On failure the error response
// has already been queued.
func decodeRequest[T any](cmd WSCommand, send chan<- any, data *T) bool {
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, data); err != nil {
			SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
			return false
		}
	}
	if verr := ValidateRequest(data); verr != nil {
		reply(send, types.WSCommandResult{Type: resultType(cmd.Type), Error: verr})
		return false
	}
	return true
}

// HandleCommand decodes a T from cmd, runs apply on it and answers with a
// plain success or the error apply returned.
func HandleCommand[T any](cmd WSCommand, send chan<- any, apply func(*T) error) {
	var req T
	if !decodeRequest(cmd, send, &req) {
		return
	}
	if err := apply(&req); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// HandleActionAsync runs action off the reader goroutine. Its result becomes
// the data of the success response.
func HandleActionAsync(cmd WSCommand, send chan<- any, action func() (any, error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in async handler", "command", cmd.Type, "panic", r)
				SendError(send, cmd.Type, errors.New("internal error"))
			}
		}()

		data, err := action()
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, data)
	}()
}

func resultType(cmdType string) string {
	return cmdType + "_result"
}

// SendSuccess queues a successful result carrying data.
func SendSuccess(send chan<- any, cmdType string, data any) {
	reply(send, types.WSCommandResult{Type: resultType(cmdType), Success: true, Data: data})
}

// SendError queues a failed result with err as its message.
func SendError(send chan<- any, cmdType string, err error) {
	reply(send, types.WSCommandResult{Type: resultType(cmdType), Error: err.Error()})
}

// SendData queues a message that is not a command result.
func SendData(send chan<- any, msg any) {
	reply(send, msg)
}

// reply never blocks the caller; a client that stopped reading loses the message.
func reply(send chan<- any, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("dropping WebSocket response, client queue full", "message", fmt.Sprintf("%T", msg))
	}
}

// ValidateRequest checks the validate tags on v and returns nil when it passes.
func ValidateRequest(v any) *types.ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verr := types.NewValidationError()
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("", err.Error(), nil)
		return verr
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), describeFieldError(fe), fe.Value())
	}
	return verr
}

// fieldMessages maps validator tags to messages; %s is the tag parameter.
var fieldMessages = map[string]string{
	"required": "is required",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"gte":      "must be at least %s",
	"lte":      "must be at most %s",
	"url":      "must be a valid URL",
	"email":    "must be a valid email address",
	"oneof":    "must be one of: %s",
}

func describeFieldError(fe validator.FieldError) string {
	msg, ok := fieldMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}
