package mid

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/api/errs"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/web"
)

// Errors handles errors coming out of the call chain. Unexpected errors are
// logged and reported as internal errors.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)
			err, isError := resp.(error)
			if !isError {
				return resp
			}

			appErr := errs.GetError(err)
			if appErr == nil {
				appErr = errs.Newf(errs.Internal, "%s", err.Error())
			}

			log.Error(ctx, "handled error during request",
				"err", err,
				"code", appErr.Code.String(),
				"reason", appErr.Reason,
				"source_err_file", appErr.FileName,
				"source_err_func", appErr.FuncName,
			)

			if appErr.HTTPStatus() >= http.StatusInternalServerError {
				span := trace.SpanFromContext(ctx)
				span.RecordError(err)
				span.SetStatus(codes.Error, appErr.Message)
			}

			return appErr
		}

		return h
	}

	return m
}
