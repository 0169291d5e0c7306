package service

import (
	"errors"
	"strings"

	apperrors "infra-chatops/internal/common/errors"
	"infra-chatops/internal/interpreter"
	"infra-chatops/internal/mapper"
)

// AsStandardError translates service, interpreter and mapper errors into the
// shared error type used by the HTTP API and the Zeebe worker.
func AsStandardError(err error, instanceID string) *apperrors.StandardError {
	if err == nil {
		return nil
	}

	var rej *interpreter.Rejection
	var stdErr *apperrors.StandardError
	switch {
	case errors.As(err, &stdErr):
		return stdErr
	case errors.As(err, &rej):
		out := apperrors.NewCommandRejectedError(string(rej.Reason), rej.Message)
		if rej.Reason == interpreter.ReasonMissingRequiredSlot {
			out = apperrors.NewMissingRequiredSlotError(rej.BestGuess, rej.MissingSlots)
			out.Message = rej.Message
		}
		out.WithMetadata("reason", string(rej.Reason)).WithMetadata("confidence", rej.Confidence)
		if rej.BestGuess != "" {
			out.WithMetadata("bestGuess", rej.BestGuess)
		}
		if len(rej.MissingSlots) > 0 {
			out.WithMetadata("missingSlots", strings.Join(rej.MissingSlots, ","))
		}
		return out
	case errors.Is(err, mapper.ErrUnknownIntent), errors.Is(err, mapper.ErrDirectIntent):
		return apperrors.NewUnknownIntentError(err.Error())
	case errors.Is(err, mapper.ErrUnknownWorkflow):
		return apperrors.NewWorkflowNotFoundError(err.Error())
	case errors.Is(err, mapper.ErrMissingParameter):
		return apperrors.NewCommandRejectedError("MissingParameter", err.Error())
	case errors.Is(err, ErrNotFound):
		return apperrors.NewInstanceNotFoundError(instanceID)
	case errors.Is(err, ErrFinished):
		return apperrors.NewInstanceFinishedError(instanceID)
	case errors.Is(err, ErrShuttingDown):
		return apperrors.NewExternalServiceError("chatops", err)
	}
	return apperrors.NewInternalError(err)
}
