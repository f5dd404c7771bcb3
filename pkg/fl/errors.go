package fl

import "errors"

var (
	ErrNoUpdates     = errors.New("no updates provided for aggregation")
	ErrOverflow      = errors.New("sample count overflow during aggregation")
	ErrZeroSamples   = errors.New("total sample count is zero")
	ErrShapeMismatch = errors.New("update weights do not match the model shape")
	ErrEmptyClient   = errors.New("empty client id")
	ErrInvalidRound  = errors.New("round number must be at least 1")
	ErrNotFinite     = errors.New("update contains non-finite values")
	ErrRoundMismatch = errors.New("update belongs to a different round")
	ErrInvalidName   = errors.New("invalid model name")
)
