package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/finvet-io/finvet/internal/context"
	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/response"
)

type UserResponseData struct {
	ID           string                `json:"id"`
	FirstName    string                `json:"first_name"`
	LastName     string                `json:"last_name"`
	Email        string                `json:"email"`
	PhoneNumber  string                `json:"phone_number"`
	AccountType  string                `json:"account_type"`
	Image        string                `json:"image,omitempty"`
	Verification *VerificationResponse `json:"verification"`
	CreatedAt    time.Time             `json:"created_at"`
}

type VerificationResponse struct {
	Status          string `json:"status"`
	ApplicantID     string `json:"applicant_id,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	LastUpdated     string `json:"last_updated,omitempty"`
}

func newVerificationResponse(user *database.User) *VerificationResponse {
	data := &VerificationResponse{
		Status:          user.KycStatus,
		ApplicantID:     user.KycApplicantID.String,
		RejectionReason: user.KycRejectionReason.String,
	}

	if user.KycLastUpdated.Valid {
		data.LastUpdated = user.KycLastUpdated.Time.Format(time.RFC3339)
	}

	return data
}

func (h *RouteHandler) HandleUserProfile(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	if user == nil {
		h.ErrHandler.AuthenticationRequired(w, r)
		return
	}

	data := &UserResponseData{
		ID:           user.ID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PhoneNumber:  user.PhoneNumber,
		AccountType:  user.AccountType,
		Image:        user.Image.String,
		Verification: newVerificationResponse(user),
		CreatedAt:    user.CreatedAt,
	}

	message := "Data retrieved successfully"
	err := response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *RouteHandler) HandleChangeProfilePicture(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	if user == nil {
		h.ErrHandler.AuthenticationRequired(w, r)
		return
	}

	err := r.ParseMultipartForm(10 << 20) // 10 MB
	if err != nil {
		h.ErrHandler.BadRequest(w, r, errors.New("invalid request data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.ErrHandler.BadRequest(w, r, errors.New("error retrieving the file"))
		return
	}
	defer file.Close()

	fileExtension := filepath.Ext(header.Filename)

	tempFile, err := os.CreateTemp("", fmt.Sprintf("upload-*%s", fileExtension))
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	defer tempFile.Close()
	defer os.Remove(tempFile.Name())

	_, err = tempFile.ReadFrom(file)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	fileURL, err := h.FileUploader.UploadFile(tempFile.Name())
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = h.DB.UserChangeProfilePicture(user.ID, fileURL)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.DB.CreateActivityLog(&database.ActivityLog{
			UserID:      user.ID,
			Entity:      database.ActivityLogUserEntity,
			EntityId:    user.ID,
			Description: database.ActivityLogProfilePictureDescription,
		})

		if err != nil {
			log.Printf("Error logging profile picture change: %v", err)
			return err
		}

		return nil
	})

	message := "File uploaded successfully"
	err = response.JSONOkResponse(w, fileURL, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
