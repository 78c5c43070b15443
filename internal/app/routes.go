package app

import (
	"net/http"

	"github.com/finvet-io/finvet/internal/handler"
	"github.com/finvet-io/finvet/internal/middleware"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	middlewareRepo := middleware.New(app.ErrorHandler, app.Logger, app.DB, &app.Config)

	routeHandler := handler.NewRouteHandler(&handler.RouteHandler{
		DB:           app.DB,
		ErrHandler:   app.ErrorHandler,
		Helper:       app.Helper,
		Mailer:       app.Mailer,
		Config:       &app.Config,
		FileUploader: app.FileUploader,
	})

	kycHandler := handler.NewKycHandler(&handler.KycHandler{
		Store:        app.DB,
		Verification: app.Sumsub,
		Cache:        app.Cache,
		ErrHandler:   app.ErrorHandler,
		Helper:       app.Helper,
	})

	webhookHandler := handler.NewWebhookHandler(&handler.WebhookHandler{
		Store:      app.DB,
		Verifier:   app.Sumsub.Signer(),
		Stream:     app.Kafka,
		ErrHandler: app.ErrorHandler,
		Logger:     app.Logger,
	})

	mux.HandleFunc("GET /status", routeHandler.HandleHealthCheck)

	mux.HandleFunc("POST /auth/register", routeHandler.HandleAuthRegister)
	mux.HandleFunc("POST /auth/login", routeHandler.HandleAuthLogin)

	requireAuth := middlewareRepo.RequireAuthenticatedUser

	mux.Handle("GET /users/me", requireAuth(http.HandlerFunc(routeHandler.HandleUserProfile)))
	mux.Handle("POST /users/me/profile-picture", requireAuth(http.HandlerFunc(routeHandler.HandleChangeProfilePicture)))

	mux.Handle("POST /kyc/start", requireAuth(http.HandlerFunc(kycHandler.HandleStartVerification)))
	mux.Handle("POST /kyc/access-token", requireAuth(http.HandlerFunc(kycHandler.HandleGenerateAccessToken)))
	mux.Handle("GET /kyc/status", requireAuth(http.HandlerFunc(kycHandler.HandleVerificationStatus)))
	mux.HandleFunc("GET /kyc/levels", kycHandler.HandleVerificationLevels)

	// callbacks authenticate with a payload digest, not a bearer token
	mux.HandleFunc("POST /webhooks/sumsub", webhookHandler.HandleSumsubWebhook)

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(middlewareRepo.Authenticate(mux)))
}
