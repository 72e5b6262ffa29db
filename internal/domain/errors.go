package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrTransformFailure  = errors.New("transform failure")
	ErrGatewayFailure    = errors.New("gateway failure")
	ErrStageOrder        = errors.New("stage transition out of order")
	ErrImagePaid         = errors.New("image already paid")
	ErrSubmissionLimit   = errors.New("submission limit reached")
	ErrInvalidAction     = errors.New("invalid action payload")
)
