package api

import (
	"errors"

	"github.com/absmach/flcoord/pkg/api"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var errEmptyBody = errors.New("empty request body")

type startSessionReq struct {
	session.Config `json:",inline"`
}

func (req *startSessionReq) validate() error {
	return req.Config.Validate()
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

// optionalEntityReq addresses the most recent session when id is empty.
type optionalEntityReq struct {
	id string
}

func (e *optionalEntityReq) validate() error {
	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}

type recordsReq struct {
	sessionID     string
	offset, limit uint64
}

func (r *recordsReq) validate() error {
	if r.sessionID == "" {
		return apiutil.ErrMissingID
	}
	if r.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}

type registerClientReq struct {
	ClientID    string `json:"client_id"`
	SampleCount uint64 `json:"sample_count"`
}

func (r *registerClientReq) validate() error {
	if r.ClientID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listClientsReq struct {
	onlineOnly bool
}

func (r *listClientsReq) validate() error {
	return nil
}

type submitUpdateReq struct {
	fl.Update `json:",inline"`
}

func (r *submitUpdateReq) validate() error {
	if r.ClientID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type submitCBORReq struct {
	data []byte
}

func (r *submitCBORReq) validate() error {
	if len(r.data) == 0 {
		return errEmptyBody
	}

	return nil
}
