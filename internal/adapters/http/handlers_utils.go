package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// decodeOptionalBody accepts an empty body for endpoints whose fields are
// all optional.
func decodeOptionalBody(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := decodeBody(r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func requestActor(ctx context.Context) application.Actor {
	actor, _ := actorFromContext(ctx)
	return actor
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logHTTPOperationError(ctx, operation, status, code, msg, err)
	writeError(w, r, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, r *http.Request, operation string, err error) {
	code := "VALIDATION_ERROR"
	msg := err.Error()
	logHTTPOperationError(ctx, operation, http.StatusBadRequest, code, msg, err)
	writeError(w, r, http.StatusBadRequest, code, msg)
}

func writeUnauthorized(ctx context.Context, w http.ResponseWriter, r *http.Request, operation string) {
	code := "UNAUTHORIZED"
	msg := "missing api key or bearer token"
	logHTTPOperationError(ctx, operation, http.StatusUnauthorized, code, msg, nil)
	writeError(w, r, http.StatusUnauthorized, code, msg)
}
