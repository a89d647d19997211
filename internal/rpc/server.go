// Package rpc binds the ingestion service to gRPC.
//
// The Aggregator service is described by aggregator.proto, embedded in the
// binary and parsed at startup. Requests and responses travel as protobuf
// and are handled as dynamic messages built from those descriptors, so no
// generated code is involved. Service errors are mapped onto gRPC status
// codes by ToStatus and back by FromStatus.
package rpc

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/torosent/benchhub/internal/errdefs"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "benchhub.v1.Aggregator"

// AggregatorServer is the server API of the Aggregator service.
// *service.Service implements it.
type AggregatorServer interface {
	RegisterClient(ctx context.Context, cfg registry.ClientConfig) (registry.ClientID, error)
	CloseClient(ctx context.Context, id registry.ClientID) error
	SubmitSamples(ctx context.Context, id registry.ClientID, batch metrics.SampleBatch) error
	GetConfig(ctx context.Context) service.ConfigSnapshot
	// RejectBatch accounts for a submission whose payload could not be
	// decoded and returns cause wrapped as errdefs.ErrMalformed.
	RejectBatch(cause error) error
}

var _ AggregatorServer = (*service.Service)(nil)

// unaryMethod decodes req, calls srv and fills resp.
type unaryMethod func(srv AggregatorServer, ctx context.Context, req, resp *dynamic.Message) error

var unaryMethods = map[string]unaryMethod{
	"RegisterClient": func(srv AggregatorServer, ctx context.Context, req, resp *dynamic.Message) error {
		r := fieldReader{msg: req}
		msg := r.nested("config")
		if r.err != nil {
			return r.err
		}
		if msg == nil {
			return fmt.Errorf("%w: register request has no config", errdefs.ErrMalformed)
		}
		cfg, err := decodeClientConfig(msg)
		if err != nil {
			return err
		}
		id, err := srv.RegisterClient(ctx, cfg)
		if err != nil {
			return err
		}
		return setFields(resp, field{"client_id", string(id)})
	},
	"CloseClient": func(srv AggregatorServer, ctx context.Context, req, _ *dynamic.Message) error {
		r := fieldReader{msg: req}
		id := r.str("client_id")
		if r.err != nil {
			return r.err
		}
		return srv.CloseClient(ctx, registry.ClientID(id))
	},
	"SubmitSamples": func(srv AggregatorServer, ctx context.Context, req, _ *dynamic.Message) error {
		r := fieldReader{msg: req}
		id := r.str("client_id")
		msg := r.nested("batch")
		if r.err != nil {
			return srv.RejectBatch(r.err)
		}
		if msg == nil {
			return srv.RejectBatch(fmt.Errorf("submit request from %q has no batch", id))
		}
		batch, err := decodeBatch(msg)
		if err != nil {
			return srv.RejectBatch(err)
		}
		return srv.SubmitSamples(ctx, registry.ClientID(id), batch)
	},
	"GetConfig": func(srv AggregatorServer, ctx context.Context, _, resp *dynamic.Message) error {
		return setFields(resp, snapshotFields(srv.GetConfig(ctx))...)
	},
}

// ServiceDesc builds the grpc.ServiceDesc of the Aggregator service from its
// parsed descriptor.
func ServiceDesc() *grpc.ServiceDesc {
	sd := &grpc.ServiceDesc{
		ServiceName: aggregator.GetFullyQualifiedName(),
		HandlerType: (*AggregatorServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    ProtoFile,
	}
	for _, m := range aggregator.GetMethods() {
		call, ok := unaryMethods[m.GetName()]
		if !ok {
			continue
		}
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: m.GetName(),
			Handler:    unaryHandler(m, call),
		})
	}
	return sd
}

func unaryHandler(m *desc.MethodDescriptor, call unaryMethod) grpc.MethodHandler {
	full := fullMethod(m.GetName())
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := dynamic.NewMessage(m.GetInputType())
		// A payload that does not decode still runs through the
		// interceptors so it is traced and logged like any other call.
		decErr := dec(req)
		invoke := func(ctx context.Context, req any) (any, error) {
			as := srv.(AggregatorServer)
			if decErr != nil {
				err := fmt.Errorf("%s: %v", full, decErr)
				if m.GetName() == "SubmitSamples" {
					return nil, ToStatus(as.RejectBatch(err))
				}
				return nil, ToStatus(fmt.Errorf("%w: %v", errdefs.ErrMalformed, err))
			}
			resp := dynamic.NewMessage(m.GetOutputType())
			if err := call(as, ctx, req.(*dynamic.Message), resp); err != nil {
				return nil, ToStatus(err)
			}
			return resp, nil
		}
		if interceptor == nil {
			return invoke(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		return interceptor(ctx, req, info, invoke)
	}
}

// RegisterAggregatorServer registers srv with s.
func RegisterAggregatorServer(s grpc.ServiceRegistrar, srv AggregatorServer) {
	s.RegisterService(ServiceDesc(), srv)
}

// NewGRPCServer builds a grpc.Server serving svc with tracing and logging
// interceptors installed.
func NewGRPCServer(svc AggregatorServer, tracer trace.Tracer, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(tracer, logger)),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterAggregatorServer(s, svc)
	return s
}
