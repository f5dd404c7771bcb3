package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	StatusKey = "status"
	DefOffset = 0
	DefLimit  = 100

	ContentType     = "application/json"
	CBORContentType = "application/cbor"

	MaxLimitSize = 100
)

// ErrorRes is the body of every failed request.
type ErrorRes struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	status, kind := classify(err)
	w.WriteHeader(status)

	code := pkgerrors.Code(err)
	if code == "" {
		code = kind
	}
	if err := json.NewEncoder(w).Encode(ErrorRes{Code: code, Error: message(err)}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apiutil.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType, "unsupported_content_type"
	case errors.Is(err, pkgerrors.ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidData),
		errors.Is(err, apiutil.ErrValidation):
		return http.StatusBadRequest, "malformed_request"
	case errors.Is(err, pkgerrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pkgerrors.ErrConflict), errors.Is(err, pkgerrors.ErrEntityExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, pkgerrors.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// message flattens a joined chain onto one line.
func message(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}
