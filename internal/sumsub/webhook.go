package sumsub

// Header the provider signs its callbacks with.
const WebhookSignatureHeader = "X-Payload-Digest"

// Callback types the review pipeline reacts to. The provider may introduce
// new types at any time; anything unrecognized is acknowledged and ignored.
const (
	WebhookTypeApplicantCreated  = "applicantCreated"
	WebhookTypeApplicantPending  = "applicantPending"
	WebhookTypeApplicantReviewed = "applicantReviewed"
	WebhookTypeApplicantOnHold   = "applicantOnHold"
	WebhookTypeIDDocReviewed     = "idDocReviewed"
)

const (
	ReviewStatusCompleted = "completed"

	// ReviewAnswerGreen is the provider's pass verdict; any other answer on a
	// completed review is a fail.
	ReviewAnswerGreen = "GREEN"
)

type ReviewResult struct {
	ReviewAnswer      string `json:"reviewAnswer"`
	ModerationComment string `json:"moderationComment"`
}

// WebhookEvent is the decoded shape of a provider callback. Only Type and
// ApplicantID are guaranteed present.
type WebhookEvent struct {
	Type         string       `json:"type"`
	ApplicantID  string       `json:"applicantId"`
	ReviewStatus string       `json:"reviewStatus"`
	ReviewResult ReviewResult `json:"reviewResult"`
	ErrorCode    string       `json:"errorCode"`
}
