package sdk

import (
	"encoding/json"
	"net/http"

	"github.com/absmach/flcoord/pkg/fl"
)

const (
	clientsEndpoint = "/clients"
	updatesEndpoint = "/updates"
)

type registerRequest struct {
	ClientID    string `json:"client_id"`
	SampleCount uint64 `json:"sample_count"`
}

func (sdk *flSDK) RegisterClient(id string, samples uint64) (Client, error) {
	data, err := json.Marshal(registerRequest{ClientID: id, SampleCount: samples})
	if err != nil {
		return Client{}, err
	}

	url := sdk.coordinatorURL + clientsEndpoint

	return decode[Client](sdk.processRequest(http.MethodPost, url, CTJSON, data, http.StatusCreated))
}

func (sdk *flSDK) GetClient(id string) (Client, error) {
	url := sdk.coordinatorURL + clientsEndpoint + "/" + id

	return decode[Client](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) ListClients(onlineOnly bool) (ClientPage, error) {
	url := sdk.coordinatorURL + clientsEndpoint
	if onlineOnly {
		url += "?status=online"
	}

	return decode[ClientPage](sdk.processRequest(http.MethodGet, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) Heartbeat(id string) (Client, error) {
	url := sdk.coordinatorURL + clientsEndpoint + "/" + id + "/heartbeat"

	return decode[Client](sdk.processRequest(http.MethodPost, url, CTJSON, nil, http.StatusOK))
}

func (sdk *flSDK) DisconnectClient(id string) (Client, error) {
	url := sdk.coordinatorURL + clientsEndpoint + "/" + id + "/disconnect"

	return decode[Client](sdk.processRequest(http.MethodPost, url, CTJSON, nil, http.StatusOK))
}

// A rejected update comes back as 409 with a result body, not an error body.
func (sdk *flSDK) SubmitUpdate(u Update) (SubmitResult, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return SubmitResult{}, err
	}

	url := sdk.coordinatorURL + updatesEndpoint

	return sdk.submit(url, CTJSON, data)
}

func (sdk *flSDK) SubmitUpdateCBOR(u Update) (SubmitResult, error) {
	data, err := fl.EncodeUpdateCBOR(u)
	if err != nil {
		return SubmitResult{}, err
	}

	url := sdk.coordinatorURL + updatesEndpoint + "/cbor"

	return sdk.submit(url, CTCBOR, data)
}

func (sdk *flSDK) submit(url, contentType string, data []byte) (SubmitResult, error) {
	body, err := sdk.processRequest(http.MethodPost, url, contentType, data, http.StatusAccepted, http.StatusConflict)
	if err != nil {
		return SubmitResult{}, err
	}

	var res SubmitResult
	if err := json.Unmarshal(body, &res); err != nil {
		return SubmitResult{}, err
	}
	if !res.Accepted && res.Reason == "" {
		// 409 with an error body, e.g. a conflicting session state
		e := &Error{StatusCode: http.StatusConflict}
		_ = json.Unmarshal(body, e)

		return SubmitResult{}, e
	}

	return res, nil
}
