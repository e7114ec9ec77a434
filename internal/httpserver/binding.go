package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	defaultTake = 10
	maxTake     = 100
	maxBodySize = 1 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationError lists the rejected request fields keyed by their JSON name.
type validationError struct {
	Fields map[string]string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%d invalid field(s)", len(e.Fields))
}

func (e *validationError) Is(target error) bool { return target == errValidation }

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// bind decodes a JSON body into v and validates it.
func bind(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON payload", errValidation)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			msg := fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
			if fe.Param() != "" {
				msg = fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param())
			}
			fields[fe.Field()] = msg
		}
		return &validationError{Fields: fields}
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", errValidation)
	}
	return id, nil
}

// pageParams reads skip and take from the query string.
func pageParams(r *http.Request) (skip, take int, err error) {
	skip, take = 0, defaultTake
	q := r.URL.Query()
	if raw := q.Get("skip"); raw != "" {
		if skip, err = strconv.Atoi(raw); err != nil || skip < 0 {
			return 0, 0, fmt.Errorf("%w: skip must be a non-negative integer", errValidation)
		}
	}
	if raw := q.Get("take"); raw != "" {
		if take, err = strconv.Atoi(raw); err != nil || take <= 0 || take > maxTake {
			return 0, 0, fmt.Errorf("%w: take must be between 1 and %d", errValidation, maxTake)
		}
	}
	return skip, take, nil
}
