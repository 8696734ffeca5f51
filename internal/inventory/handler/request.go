package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// decode reads and validates a JSON body, writing the error response
// itself when it fails
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := httputil.DecodeJSON(r, v); err != nil {
		httputil.Error(w, err)
		return false
	}
	if err := httputil.Validate(v); err != nil {
		httputil.Error(w, err)
		return false
	}
	return true
}

func requiredDate(r *http.Request, name string) (time.Time, error) {
	d, err := httputil.QueryDate(r, name)
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return time.Time{}, errors.Invalid(name, "this field is required")
	}
	return *d, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Invalid(name, "must be true or false")
	}
	return b, nil
}

// pagination reads limit and offset
func pagination(r *http.Request) (limit, offset int, err error) {
	if limit, err = httputil.QueryInt(r, "limit", defaultLimit); err != nil {
		return 0, 0, err
	}
	if limit == 0 || limit > maxLimit {
		limit = maxLimit
	}
	if offset, err = httputil.QueryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
