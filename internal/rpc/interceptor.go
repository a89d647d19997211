package rpc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/torosent/benchhub/internal/tracing"
)

// UnaryServerInterceptor wraps each call in a server span continued from the
// worker's trace context and logs its outcome. Expected rejections
// (backpressure, unknown client) are logged at debug level; anything mapped
// to Internal is an error.
func UnaryServerInterceptor(tracer trace.Tracer, logger *zap.Logger) grpc.UnaryServerInterceptor {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("rpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = tracing.ExtractIncoming(ctx)
		ctx, span := tracing.StartRPCSpan(ctx, tracer, trace.SpanKindServer, info.FullMethod)

		start := time.Now()
		resp, err := handler(ctx, req)
		err = ToStatus(err)
		code := status.Code(err)

		tracing.EndSpan(span, err, attribute.String("rpc.grpc.status_code", code.String()))
		logger.Check(levelFor(code), "handled call").Write(
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return resp, err
	}
}

func levelFor(code codes.Code) zapcore.Level {
	switch code {
	case codes.OK, codes.Unavailable, codes.NotFound, codes.Canceled:
		return zapcore.DebugLevel
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
