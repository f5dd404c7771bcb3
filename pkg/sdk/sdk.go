package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
)

const (
	CTJSON string = "application/json"
	CTCBOR string = "application/cbor"
)

type (
	Session       = session.Session
	SessionConfig = session.Config
	SessionPage   = session.Page
	Client        = client.Client
	Update        = fl.Update
	Model         = fl.Model
	Record        = fl.RoundMetrics
	RecordPage    = fl.RoundMetricsPage
)

type ClientPage struct {
	Total   uint64   `json:"total"`
	Clients []Client `json:"clients"`
}

// SubmitResult mirrors the coordinator's verdict on one update.
type SubmitResult struct {
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Round      uint64 `json:"round"`
	Replaced   bool   `json:"replaced,omitempty"`
	Aggregated bool   `json:"aggregated,omitempty"`
}

type Status struct {
	SessionID     string `json:"session_id,omitempty"`
	ProjectID     string `json:"project_id,omitempty"`
	State         string `json:"state"`
	Status        string `json:"status"`
	CurrentRound  uint64 `json:"current_round"`
	TotalRounds   uint64 `json:"total_rounds"`
	PoolSize      int    `json:"pool_size"`
	OnlineClients int    `json:"online_clients"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
}

type Snapshot struct {
	Session   *Session  `json:"session,omitempty"`
	Clients   []Client  `json:"online_clients"`
	Timestamp time.Time `json:"timestamp"`
}

// Error is returned for every non-success response.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected response code: %d", e.StatusCode)
	}

	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type SDK interface {
	// StartSession starts a training session.
	//
	// example:
	//  s, _ := sdk.StartSession(sdk.SessionConfig{ProjectID: "cardio", TotalRounds: 5, MinClients: 3})
	//  fmt.Println(s.ID)
	StartSession(cfg SessionConfig) (Session, error)

	// GetSession gets a session by id.
	GetSession(id string) (Session, error)

	// ListSessions lists sessions in creation order.
	ListSessions(offset, limit uint64) (SessionPage, error)

	// CancelSession cancels an active session.
	CancelSession(id string) (Session, error)

	// Status reports the most recent session.
	Status() (Status, error)

	// Snapshot returns the state a reconnecting observer needs.
	Snapshot() (Snapshot, error)

	// GlobalModel returns the newest aggregated model of a session.
	GlobalModel(sessionID string) (Model, error)

	// RegisterClient registers a client or refreshes its sample count.
	//
	// example:
	//  c, _ := sdk.RegisterClient("hospital-a", 1200)
	RegisterClient(id string, samples uint64) (Client, error)

	// GetClient gets a client by id.
	GetClient(id string) (Client, error)

	// ListClients lists clients, optionally only online ones.
	ListClients(onlineOnly bool) (ClientPage, error)

	// Heartbeat keeps a client online.
	Heartbeat(id string) (Client, error)

	// DisconnectClient marks a client offline.
	DisconnectClient(id string) (Client, error)

	// SubmitUpdate submits a JSON update. Rejections are not errors.
	SubmitUpdate(u Update) (SubmitResult, error)

	// SubmitUpdateCBOR submits a CBOR-encoded update.
	SubmitUpdateCBOR(u Update) (SubmitResult, error)

	// LatestRecord returns the newest record of a session, or of the most
	// recent session when sessionID is empty.
	LatestRecord(sessionID string) (Record, error)

	// ListRecords lists a session's records in round order.
	ListRecords(sessionID string, offset, limit uint64) (RecordPage, error)

	// Watch streams raw event frames to fn until ctx ends, fn fails or the
	// coordinator closes the stream. The first frame is a snapshot.
	Watch(ctx context.Context, fn func(frame []byte) error) error
}

type flSDK struct {
	coordinatorURL string
	token          string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	Token           string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &flSDK{
		coordinatorURL: strings.TrimSuffix(cfg.CoordinatorURL, "/"),
		token:          cfg.Token,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *flSDK) processRequest(method, reqURL, contentType string, data []byte, expectedRespCodes ...int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", contentType)
	if sdk.token != "" {
		req.Header.Set("Authorization", "Bearer "+sdk.token)
	}

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if !slices.Contains(expectedRespCodes, resp.StatusCode) {
		e := &Error{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, e)

		return []byte{}, e
	}

	return body, nil
}

func pageQuery(offset, limit uint64) string {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	if len(queries) == 0 {
		return ""
	}

	return "?" + strings.Join(queries, "&")
}

func decode[T any](body []byte, err error) (T, error) {
	var v T
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, err
	}

	return v, nil
}
