package storage

import (
	"errors"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
)

var (
	ErrNotFound        = pkgerrors.ErrNotFound
	ErrEntityExists    = pkgerrors.ErrEntityExists
	ErrUnsupportedType = errors.New("unsupported storage type")
)
