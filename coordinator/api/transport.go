package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/api"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxBodySize = 32 * 1024 * 1024
	sessionKey  = "sessionID"
	clientKey   = "clientID"
)

var errInvalidStatus = errors.New("status must be online or all")

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID, token string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}
	auth := authenticate(token)

	mux.Route("/sessions", func(r chi.Router) {
		r.With(auth).Post("/", otelhttp.NewHandler(kithttp.NewServer(
			startSessionEndpoint(svc),
			decodeStartSessionReq,
			api.EncodeResponse,
			opts...,
		), "start-session").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listSessionsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-sessions").ServeHTTP)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getSessionEndpoint(svc),
				decodeEntityReq(sessionKey),
				api.EncodeResponse,
				opts...,
			), "get-session").ServeHTTP)
			r.With(auth).Post("/cancel", otelhttp.NewHandler(kithttp.NewServer(
				cancelSessionEndpoint(svc),
				decodeEntityReq(sessionKey),
				api.EncodeResponse,
				opts...,
			), "cancel-session").ServeHTTP)
			r.Get("/model", otelhttp.NewHandler(kithttp.NewServer(
				globalModelEndpoint(svc),
				decodeEntityReq(sessionKey),
				api.EncodeResponse,
				opts...,
			), "get-global-model").ServeHTTP)
			r.Get("/records", otelhttp.NewHandler(kithttp.NewServer(
				listRecordsEndpoint(svc),
				decodeRecordsReq,
				api.EncodeResponse,
				opts...,
			), "list-records").ServeHTTP)
			r.Get("/records/latest", otelhttp.NewHandler(kithttp.NewServer(
				latestRecordEndpoint(svc),
				decodeOptionalEntityReq(sessionKey),
				api.EncodeResponse,
				opts...,
			), "get-latest-record").ServeHTTP)
		})
	})

	mux.Get("/records/latest", otelhttp.NewHandler(kithttp.NewServer(
		latestRecordEndpoint(svc),
		decodeOptionalEntityReq(sessionKey),
		api.EncodeResponse,
		opts...,
	), "get-latest-record").ServeHTTP)

	mux.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
		statusEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "status").ServeHTTP)

	mux.Get("/snapshot", otelhttp.NewHandler(kithttp.NewServer(
		snapshotEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "snapshot").ServeHTTP)

	mux.Route("/clients", func(r chi.Router) {
		r.With(auth).Post("/", otelhttp.NewHandler(kithttp.NewServer(
			registerClientEndpoint(svc),
			decodeRegisterClientReq,
			api.EncodeResponse,
			opts...,
		), "register-client").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listClientsEndpoint(svc),
			decodeListClientsReq,
			api.EncodeResponse,
			opts...,
		), "list-clients").ServeHTTP)
		r.Route("/{clientID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getClientEndpoint(svc),
				decodeEntityReq(clientKey),
				api.EncodeResponse,
				opts...,
			), "get-client").ServeHTTP)
			r.With(auth).Post("/heartbeat", otelhttp.NewHandler(kithttp.NewServer(
				heartbeatEndpoint(svc),
				decodeEntityReq(clientKey),
				api.EncodeResponse,
				opts...,
			), "heartbeat").ServeHTTP)
			r.With(auth).Post("/disconnect", otelhttp.NewHandler(kithttp.NewServer(
				disconnectClientEndpoint(svc),
				decodeEntityReq(clientKey),
				api.EncodeResponse,
				opts...,
			), "disconnect-client").ServeHTTP)
		})
	})

	mux.Route("/updates", func(r chi.Router) {
		r.Use(auth)
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateEndpoint(svc),
			decodeSubmitUpdateReq,
			api.EncodeResponse,
			opts...,
		), "submit-update").ServeHTTP)
		r.Post("/cbor", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateCBOREndpoint(svc),
			decodeSubmitCBORReq,
			api.EncodeResponse,
			opts...,
		), "submit-update-cbor").ServeHTTP)
	})

	mux.Get("/events", streamEvents(svc, logger))
	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// authenticate requires a bearer token on the wrapped routes. An empty token
// disables the check.
func authenticate(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				api.EncodeError(r.Context(), pkgerrors.ErrUnauthorized, w)

				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeOptionalEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return optionalEntityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}

func decodeRecordsReq(ctx context.Context, r *http.Request) (any, error) {
	req, err := decodeListEntityReq(ctx, r)
	if err != nil {
		return nil, err
	}
	page := req.(listEntityReq)

	return recordsReq{
		sessionID: chi.URLParam(r, sessionKey),
		offset:    page.offset,
		limit:     page.limit,
	}, nil
}

func decodeListClientsReq(_ context.Context, r *http.Request) (any, error) {
	switch r.URL.Query().Get(api.StatusKey) {
	case "", "all":
		return listClientsReq{}, nil
	case "online":
		return listClientsReq{onlineOnly: true}, nil
	default:
		return nil, errors.Join(apiutil.ErrValidation, errInvalidStatus)
	}
}

func decodeStartSessionReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req startSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeRegisterClientReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req registerClientReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeSubmitUpdateReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req submitUpdateReq
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeSubmitCBORReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.CBORContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return submitCBORReq{data: data}, nil
}
