// Package validation wraps go-playground/validator/v10 behind a
// singleton instance and an error-translation layer producing the api
// package's VALIDATION_ERROR response shape.
//
// # Quick start
//
//	type refreshPolicyRequest struct {
//	    IncrementalWindowDays int    `validate:"required,min=1,max=3650"`
//	    RefreshFrequency      string `validate:"required,oneof=daily weekly monthly"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    WriteError(w, r, apperrors.Wrap(apperrors.ErrValidation, apiErr.Message, apperrors.ErrValidation))
//	    return
//	}
//
// # Supported tags
//
// Anything go-playground/validator ships (required, min, max, oneof, gte,
// lte, email, url, ...); translateError produces a human-readable message
// for the tags this codebase's request structs actually use, falling back
// to a generic "<field> failed <tag> validation" otherwise.
//
// The validator instance is built once via sync.Once and is safe for
// concurrent use across handlers.
package validation
