package http

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/tinylink/internal/entity"
	"github.com/vadimbarashkov/tinylink/internal/usecase"
	"github.com/vadimbarashkov/tinylink/pkg/response"
)

//go:embed notfound.html
var notFoundPage []byte

type linkUseCase interface {
	CreateLink(ctx context.Context, targetURL, code string) (*entity.Link, error)
	ListLinks(ctx context.Context) ([]entity.Link, error)
	GetLink(ctx context.Context, code string) (*entity.Link, error)
	DeleteLink(ctx context.Context, code string) error
	ResolveLink(ctx context.Context, code string) (string, error)
	Ping(ctx context.Context) error
}

type linkHandler struct {
	useCase  linkUseCase
	validate *validator.Validate
}

// newValidator returns a validator that reports fields by their JSON names and
// knows the shortcode tag.
func newValidator() (*validator.Validate, error) {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := validate.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
		return entity.IsValidCode(fl.Field().String())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register shortcode validation: %w", err)
	}

	return validate, nil
}

func newLinkHandler(useCase linkUseCase, validate *validator.Validate) *linkHandler {
	return &linkHandler{
		useCase:  useCase,
		validate: validate,
	}
}

func setLogError(r *http.Request, op string, err error) {
	httplog.LogEntrySetFields(r.Context(), map[string]any{
		"op":  op,
		"err": err,
	})
}

// renderError maps a service error onto the response status and envelope.
// Server-side failures go to the request log, never to the client.
func renderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidInputResponse)
	case errors.Is(err, entity.ErrCodeConflict):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, codeConflictResponse)
	case errors.Is(err, entity.ErrLinkNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, linkNotFoundResponse)
	case errors.Is(err, usecase.ErrGenerationExhausted):
		setLogError(r, op, err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, generationExhaustedResponse)
	case errors.Is(err, entity.ErrUnavailable):
		setLogError(r, op, err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, unavailableResponse)
	default:
		setLogError(r, op, err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerError)
	}
}

func (h *linkHandler) createLink(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.createLink"

	var req createLinkRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.EmptyRequestBody)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.InvalidRequestBody)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Validation(err))
		return
	}

	link, err := h.useCase.CreateLink(r.Context(), req.TargetURL, req.Code)
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toLinkResponse(link))
}

func (h *linkHandler) listLinks(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.listLinks"

	links, err := h.useCase.ListLinks(r.Context())
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toLinkResponses(links))
}

func (h *linkHandler) getLink(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.getLink"

	code := chi.URLParam(r, "code")

	link, err := h.useCase.GetLink(r.Context(), code)
	if err != nil {
		renderError(w, r, op, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toLinkResponse(link))
}

func (h *linkHandler) deleteLink(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.deleteLink"

	code := chi.URLParam(r, "code")

	if err := h.useCase.DeleteLink(r.Context(), code); err != nil {
		renderError(w, r, op, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, deleteResponse{Success: true})
}

func (h *linkHandler) redirect(w http.ResponseWriter, r *http.Request) {
	const op = "adapter.delivery.http.linkHandler.redirect"

	code := chi.URLParam(r, "code")

	targetURL, err := h.useCase.ResolveLink(r.Context(), code)
	if err != nil {
		if errors.Is(err, entity.ErrLinkNotFound) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write(notFoundPage)
			return
		}

		renderError(w, r, op, err)
		return
	}

	http.Redirect(w, r, targetURL, http.StatusFound)
}

func handleHealth(linkUseCase linkUseCase, startedAt time.Time) http.HandlerFunc {
	const op = "adapter.delivery.http.handleHealth"

	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		resp := healthResponse{
			Status:        healthStatusOK,
			Timestamp:     now.UTC(),
			UptimeSeconds: now.Sub(startedAt).Seconds(),
			Database:      databaseConnected,
		}

		if err := linkUseCase.Ping(r.Context()); err != nil {
			setLogError(r, op, err)

			resp.Status = healthStatusError
			resp.Database = databaseConnectionFailed

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, resp)
	}
}
