package api

import (
	"net/http"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*sessionResponse)(nil)
	_ supermq.Response = (*listSessionsResponse)(nil)
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*clientResponse)(nil)
	_ supermq.Response = (*listClientsResponse)(nil)
	_ supermq.Response = (*submitResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
	_ supermq.Response = (*recordResponse)(nil)
	_ supermq.Response = (*listRecordsResponse)(nil)
	_ supermq.Response = (*snapshotResponse)(nil)
)

type sessionResponse struct {
	session.Session
	created bool
}

func (s sessionResponse) Code() int {
	if s.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (s sessionResponse) Headers() map[string]string {
	if s.created {
		return map[string]string{
			"Location": "/sessions/" + s.ID,
		}
	}

	return map[string]string{}
}

func (s sessionResponse) Empty() bool {
	return false
}

type listSessionsResponse struct {
	session.Page
}

func (l listSessionsResponse) Code() int {
	return http.StatusOK
}

func (l listSessionsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listSessionsResponse) Empty() bool {
	return false
}

type statusResponse struct {
	coordinator.StatusReport
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type clientResponse struct {
	client.Client
	created bool
}

func (c clientResponse) Code() int {
	if c.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (c clientResponse) Headers() map[string]string {
	if c.created {
		return map[string]string{
			"Location": "/clients/" + c.ID,
		}
	}

	return map[string]string{}
}

func (c clientResponse) Empty() bool {
	return false
}

type listClientsResponse struct {
	Total   uint64          `json:"total"`
	Clients []client.Client `json:"clients"`
}

func (l listClientsResponse) Code() int {
	return http.StatusOK
}

func (l listClientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listClientsResponse) Empty() bool {
	return false
}

type submitResponse struct {
	coordinator.SubmitResult
}

func (s submitResponse) Code() int {
	if s.Accepted {
		return http.StatusAccepted
	}

	return http.StatusConflict
}

func (s submitResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s submitResponse) Empty() bool {
	return false
}

type modelResponse struct {
	fl.Model
}

func (m modelResponse) Code() int {
	return http.StatusOK
}

func (m modelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (m modelResponse) Empty() bool {
	return false
}

type recordResponse struct {
	fl.RoundMetrics
}

func (r recordResponse) Code() int {
	return http.StatusOK
}

func (r recordResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r recordResponse) Empty() bool {
	return false
}

type listRecordsResponse struct {
	fl.RoundMetricsPage
}

func (l listRecordsResponse) Code() int {
	return http.StatusOK
}

func (l listRecordsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRecordsResponse) Empty() bool {
	return false
}

type snapshotResponse struct {
	events.Snapshot
}

func (s snapshotResponse) Code() int {
	return http.StatusOK
}

func (s snapshotResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s snapshotResponse) Empty() bool {
	return false
}
