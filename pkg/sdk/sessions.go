package sdk

import (
	"encoding/json"
	"net/http"
)

const (
	sessionsEndpoint = "/sessions"
	recordsEndpoint  = "/records"
)

func (sdk *flSDK) StartSession(cfg SessionConfig) (Session, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return Session{}, err
	}

	url := sdk.coordinatorURL + sessionsEndpoint

	return decode[Session](sdk.processRequest(http.MethodPost, url, CTJSON, data, http.StatusCreated))
}

func (sdk *flSDK) GetSession(id string) (Session, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + id

	return decode[Session](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) ListSessions(offset, limit uint64) (SessionPage, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + pageQuery(offset, limit)

	return decode[SessionPage](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) CancelSession(id string) (Session, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + id + "/cancel"

	return decode[Session](sdk.processRequest(http.MethodPost, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) Status() (Status, error) {
	url := sdk.coordinatorURL + "/status"

	return decode[Status](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) Snapshot() (Snapshot, error) {
	url := sdk.coordinatorURL + "/snapshot"

	return decode[Snapshot](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) GlobalModel(sessionID string) (Model, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + sessionID + "/model"

	return decode[Model](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) LatestRecord(sessionID string) (Record, error) {
	url := sdk.coordinatorURL + recordsEndpoint + "/latest"
	if sessionID != "" {
		url = sdk.coordinatorURL + sessionsEndpoint + "/" + sessionID + recordsEndpoint + "/latest"
	}

	return decode[Record](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) ListRecords(sessionID string, offset, limit uint64) (RecordPage, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + sessionID + recordsEndpoint + pageQuery(offset, limit)

	return decode[RecordPage](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}
