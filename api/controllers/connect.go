package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haleycommerce/storefront-backend/api/responses"
	"github.com/haleycommerce/storefront-backend/api/validators"
	connectsvc "github.com/haleycommerce/storefront-backend/internal/connect"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
)

// ConnectCreateAccount provisions a connected account for the shop.
func ConnectCreateAccount(svc *connectsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		shopID, err := validators.ParsePathUUID(chi.URLParam(r, "shopID"), "shopID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.CreateConnectedAccount(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, status)
	}
}

// ConnectOnboardingLink returns a hosted onboarding URL.
func ConnectOnboardingLink(svc *connectsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		shopID, err := validators.ParsePathUUID(chi.URLParam(r, "shopID"), "shopID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		url, err := svc.CreateOnboardingLink(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

// ConnectAccountStatus refreshes and returns provider account state.
func ConnectAccountStatus(svc *connectsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		shopID, err := validators.ParsePathUUID(chi.URLParam(r, "shopID"), "shopID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.GetAccountStatus(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// ConnectLoginLink returns an express dashboard login URL.
func ConnectLoginLink(svc *connectsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		shopID, err := validators.ParsePathUUID(chi.URLParam(r, "shopID"), "shopID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		url, err := svc.CreateLoginLink(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

// ConnectDeleteAccount disconnects the shop's provider account.
func ConnectDeleteAccount(svc *connectsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		shopID, err := validators.ParsePathUUID(chi.URLParam(r, "shopID"), "shopID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteConnectedAccount(r.Context(), shopID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "disconnected"})
	}
}
