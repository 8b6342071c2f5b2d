package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// ErrorHeader carries the stable ledger error name on failed calls.
const ErrorHeader = "Sambatan-Error"

// LoggingInterceptor returns a Connect interceptor that logs every RPC call.
// Expected domain rejections are logged at info, other Connect errors at
// warn and anything else at error.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure
			userID := GetUserID(ctx) // empty if pre-auth

			resp, err := next(ctx, req)

			duration := time.Since(start).Milliseconds()

			if err == nil {
				slog.Info("RPC ok",
					"procedure", procedure,
					"user_id", userID,
					"duration_ms", duration,
				)
				return resp, nil
			}

			var connectErr *connect.Error
			if !errors.As(err, &connectErr) {
				slog.Error("RPC error",
					"procedure", procedure,
					"error", err,
					"user_id", userID,
					"duration_ms", duration,
				)
				return resp, err
			}

			level := slog.LevelWarn
			switch connectErr.Code() {
			case connect.CodeFailedPrecondition, connect.CodeResourceExhausted, connect.CodeAlreadyExists, connect.CodeNotFound:
				level = slog.LevelInfo
			case connect.CodeInternal, connect.CodeUnknown:
				level = slog.LevelError
			}
			slog.Log(ctx, level, "RPC error",
				"procedure", procedure,
				"code", connectErr.Code(),
				"reason", connectErr.Meta().Get(ErrorHeader),
				"error", connectErr.Message(),
				"user_id", userID,
				"duration_ms", duration,
			)
			return resp, err
		}
	}
}
