// Verification review outcomes are projected synchronously by the webhook
// handler; everything that can be slow or flaky (emails, audit entries)
// happens here instead, off a kyc.status message. Losing one of these
// messages loses a notification, never the status itself.
package worker

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/handler"
	"github.com/finvet-io/finvet/internal/stream"
)

func (wk *Worker) KycStatusWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: kycStatusGroupID,
		Topic:   handler.KycStatusTopic,
	})

	if err != nil {
		log.Fatalf("Error creating consumer: %v", err)
	}
	defer consumer.Close()

	for {
		select {
		case <-wk.Ctx.Done():
			log.Println("KycStatusWorker received cancellation signal, shutting down...")
			return
		default:
			event := consumer.Poll(100)
			switch e := event.(type) {
			case *kafka.Message:
				var statusMsg *handler.KycStatusMessage
				if err := json.Unmarshal(e.Value, &statusMsg); err != nil {
					log.Printf("Error decoding kyc status message: %v", err)
					continue
				}

				wk.processStatusChange(statusMsg)
			case kafka.Error:
				log.Printf("Error: %v\n", e)
			case *kafka.AssignedPartitions:
				consumer.Assign(e.Partitions)
			case *kafka.RevokedPartitions:
				consumer.Unassign()
			}
		}
	}
}

func (wk *Worker) processStatusChange(statusMsg *handler.KycStatusMessage) {
	user, found, err := wk.DB.GetUser(statusMsg.UserID)
	if err != nil || !found {
		log.Printf("Error finding user for kyc status change: %v", err)
		return
	}

	description := activityDescriptionForStatus(statusMsg.Status)

	wk.Helper.BackgroundTask(nil, func() error {
		_, err := wk.DB.CreateActivityLog(&database.ActivityLog{
			UserID:      user.ID,
			Entity:      database.ActivityLogVerificationEntity,
			EntityId:    statusMsg.ApplicantID,
			Description: description,
		})

		if err != nil {
			log.Printf("Error logging kyc status change: %v", err)
			return err
		}

		return nil
	})

	switch statusMsg.Status {
	case database.KycStatusApproved:
		wk.Helper.BackgroundTask(nil, func() error {
			emailData := wk.Helper.NewEmailData()
			emailData["Name"] = user.FirstName + " " + user.LastName

			err := wk.Mailer.Send(user.Email, emailData, "verification-approved.tmpl")
			if err != nil {
				log.Printf("Error sending verification approved email: %v", err)
				return err
			}

			return nil
		})
	case database.KycStatusRejected:
		wk.Helper.BackgroundTask(nil, func() error {
			emailData := wk.Helper.NewEmailData()
			emailData["Name"] = user.FirstName + " " + user.LastName
			emailData["Reason"] = statusMsg.RejectionReason

			err := wk.Mailer.Send(user.Email, emailData, "verification-rejected.tmpl")
			if err != nil {
				log.Printf("Error sending verification rejected email: %v", err)
				return err
			}

			return nil
		})
	}
}

func activityDescriptionForStatus(status string) string {
	switch status {
	case database.KycStatusApproved:
		return database.ActivityLogVerificationApprovedDescription
	case database.KycStatusRejected:
		return database.ActivityLogVerificationRejectedDescription
	case database.KycStatusOnHold:
		return database.ActivityLogVerificationOnHoldDescription
	default:
		return database.ActivityLogVerificationPendingDescription
	}
}
