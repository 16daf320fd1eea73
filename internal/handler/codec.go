package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/apperr"
)

const (
	maxBodySize = 1 << 20
	dateLayout  = time.DateOnly
)

var (
	errRouteNotFound    = apperr.New(apperr.KindNotFound, "route_not_found", "route not found")
	errMethodNotAllowed = apperr.New(apperr.KindInvalidInput, "method_not_allowed", "method not allowed")
	errAdminOnly        = apperr.New(apperr.KindForbidden, "admin_only", "admin role required")
)

func invalidRequest(msg string) error {
	return apperr.New(apperr.KindInvalidInput, "invalid_request", msg)
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, statusOf(err), err)
}

// writeErrorStatus writes {"code": ..., "message": ...}. Internal errors are
// logged and their message is not exposed.
func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	code, msg := apperr.CodeOf(err), err.Error()
	if apperr.KindOf(err) == apperr.KindInternal {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(code)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str("unauthorized")
		e.FieldStart("message")
		e.Str("missing or invalid api key")
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// readBody decodes the request object field by field. An empty body is
// treated as an empty object.
func readBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return invalidRequest("read body: " + err.Error())
	}
	if len(data) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		return invalidRequest("decode body: " + err.Error())
	}
	return nil
}

// optInt64 decodes an integer or null. Null decodes as zero.
func optInt64(d *jx.Decoder) (int64, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Int64()
}

// decimalString accepts a JSON string or number and returns its text.
func decimalString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.New("expected string or number")
	}
}

// optDate decodes a YYYY-MM-DD string or null.
func optDate(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, invalidRequest("delivery_date must be YYYY-MM-DD")
	}
	return &t, nil
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

func encodeOptID(e *jx.Encoder, id int64) {
	if id == 0 {
		e.Null()
		return
	}
	e.Int64(id)
}

func encodeDate(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.Format(dateLayout))
}

func encodeOptStr(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}
