package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"gearledger/internal/domain"
	"gearledger/internal/lifecycle"
	"gearledger/internal/middleware"
)

// newValidator reports fields by their JSON names and knows the slug format.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return domain.ValidSlug(fl.Field().String())
	})
	return v
}

// commandRequest is the body every state-changing request may carry.
// Metadata is stored on the audit event byte for byte.
type commandRequest struct {
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type createEquipmentRequest struct {
	commandRequest
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Slug        string `json:"slug" validate:"required,max=100,slug"`
}

type scheduleMaintenanceRequest struct {
	commandRequest
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Reason   string    `json:"reason" validate:"required,max=500"`
}

// decode reads an optional JSON body into dst and validates it. An empty body
// decodes to the zero value, which lets command endpoints be called without one.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("malformed request body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs)
		}
		return err
	}
	return nil
}

// describe turns validator errors into one readable line.
func describe(verrs validator.ValidationErrors) error {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "gtfield":
			parts = append(parts, fe.Field()+" must be after starts_at")
		case "slug":
			parts = append(parts, fe.Field()+" must be lowercase letters and digits separated by single dashes")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

// command builds the engine command from the resolved actor and the body.
func command(r *http.Request, body commandRequest) lifecycle.Command {
	actor, _ := middleware.ActorFrom(r.Context())
	return lifecycle.Command{Actor: actor, Metadata: body.Metadata}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a UUID", name)
	}
	return id, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// equipmentFilter reads ?status=&q=&limit=&offset=.
func equipmentFilter(r *http.Request) (domain.EquipmentFilter, error) {
	q := r.URL.Query()
	f := domain.EquipmentFilter{
		Status: domain.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Query:  strings.TrimSpace(q.Get("q")),
		Limit:  defaultListLimit,
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("unknown status %q", q.Get("status"))
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			return f, fmt.Errorf("limit must be between 1 and %d", maxListLimit)
		}
		f.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}
