package api

import (
	"context"
	"errors"

	"github.com/absmach/flcoord/coordinator"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func startSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(startSessionReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		s, err := svc.StartSession(ctx, req.Config)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{
			Session: s,
			created: true,
		}, nil
	}
}

func listSessionsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listSessionsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listSessionsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListSessions(ctx, req.offset, req.limit)
		if err != nil {
			return listSessionsResponse{}, err
		}

		return listSessionsResponse{
			Page: page,
		}, nil
	}
}

func getSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		s, err := svc.GetSession(ctx, req.id)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{
			Session: s,
		}, nil
	}
}

func cancelSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		s, err := svc.CancelSession(ctx, req.id)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{
			Session: s,
		}, nil
	}
}

func statusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		report, err := svc.Status(ctx)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{
			StatusReport: report,
		}, nil
	}
}

func snapshotEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		snap, err := svc.Snapshot(ctx)
		if err != nil {
			return snapshotResponse{}, err
		}

		return snapshotResponse{
			Snapshot: snap,
		}, nil
	}
}

func globalModelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		m, err := svc.GlobalModel(ctx, req.id)
		if err != nil {
			return modelResponse{}, err
		}

		return modelResponse{
			Model: m,
		}, nil
	}
}

func latestRecordEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(optionalEntityReq)
		if !ok {
			return recordResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return recordResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		rec, err := svc.LatestMetrics(ctx, req.id)
		if err != nil {
			return recordResponse{}, err
		}

		return recordResponse{
			RoundMetrics: rec,
		}, nil
	}
}

func listRecordsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(recordsReq)
		if !ok {
			return listRecordsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRecordsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.MetricsHistory(ctx, req.sessionID, req.offset, req.limit)
		if err != nil {
			return listRecordsResponse{}, err
		}

		return listRecordsResponse{
			RoundMetricsPage: page,
		}, nil
	}
}

func registerClientEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(registerClientReq)
		if !ok {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		c, err := svc.RegisterClient(ctx, req.ClientID, req.SampleCount)
		if err != nil {
			return clientResponse{}, err
		}

		return clientResponse{
			Client:  c,
			created: true,
		}, nil
	}
}

func listClientsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listClientsReq)
		if !ok {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		clients, err := svc.ListClients(ctx, req.onlineOnly)
		if err != nil {
			return listClientsResponse{}, err
		}

		return listClientsResponse{
			Total:   uint64(len(clients)),
			Clients: clients,
		}, nil
	}
}

type clientOp func(ctx context.Context, clientID string) (clientResponse, error)

func clientEndpoint(op clientOp) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		return op(ctx, req.id)
	}
}

func getClientEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return clientEndpoint(func(ctx context.Context, id string) (clientResponse, error) {
		c, err := svc.GetClient(ctx, id)

		return clientResponse{Client: c}, err
	})
}

func heartbeatEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return clientEndpoint(func(ctx context.Context, id string) (clientResponse, error) {
		c, err := svc.Heartbeat(ctx, id)

		return clientResponse{Client: c}, err
	})
}

func disconnectClientEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return clientEndpoint(func(ctx context.Context, id string) (clientResponse, error) {
		c, err := svc.DisconnectClient(ctx, id)

		return clientResponse{Client: c}, err
	})
}

func submitUpdateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submitUpdateReq)
		if !ok {
			return submitResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return submitResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		res, err := svc.SubmitUpdate(ctx, req.Update)
		if err != nil {
			return submitResponse{}, err
		}

		return submitResponse{
			SubmitResult: res,
		}, nil
	}
}

func submitUpdateCBOREndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submitCBORReq)
		if !ok {
			return submitResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return submitResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		res, err := svc.SubmitUpdateCBOR(ctx, req.data)
		if err != nil {
			return submitResponse{}, err
		}

		return submitResponse{
			SubmitResult: res,
		}, nil
	}
}
