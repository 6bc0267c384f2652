package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/security"
)

// subject suffixes appended to the configured recovery subject
const (
	ShareSubjectSuffix = ".share"
	CodeSubjectSuffix  = ".code"
)

// Messenger delivers recovery payloads to contacts over the chat platform
type Messenger interface {
	DeliverShare(ctx context.Context, ownerID string, contact Contact, req *VerificationRequest) error
	DeliverCode(ctx context.Context, ownerID string, contact Contact, code string, expiresAt time.Time) error
}

// Auditor records recovery lifecycle events; *security.Manager satisfies it
type Auditor interface {
	RecordEvent(ctx context.Context, t security.EventType, userID string, details map[string]interface{}, severity security.Severity) (*security.Event, error)
}

// ShareDelivery is the payload published for a share request
type ShareDelivery struct {
	RequestID string    `json:"requestId"`
	OwnerID   string    `json:"ownerId"`
	ContactID string    `json:"contactId"`
	ShareID   string    `json:"shareId"`
	ShareData []byte    `json:"shareData"`
	ExpiresAt time.Time `json:"expiresAt"`
	Text      string    `json:"text"`
}

// CodeDelivery is the payload published for a verification code
type CodeDelivery struct {
	OwnerID   string    `json:"ownerId"`
	ContactID string    `json:"contactId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	Text      string    `json:"text"`
}

func shareText(contact Contact, message string) string {
	return fmt.Sprintf("Hi %s! %s", contact.FirstName, message)
}

func codeText(contact Contact, code string, expiresAt time.Time) string {
	return fmt.Sprintf("Hi %s! Your wallet verification code is %s. It expires at %s.",
		contact.FirstName, code, expiresAt.UTC().Format(time.RFC3339))
}

// LogMessenger only logs deliveries; share bytes and codes are never written
type LogMessenger struct {
	logger *log.Logger
}

func NewLogMessenger(logger *log.Logger) *LogMessenger {
	if logger == nil {
		logger = log.NewWithComponent("recovery", "messenger")
	}
	return &LogMessenger{logger: logger}
}

func (l *LogMessenger) DeliverShare(ctx context.Context, ownerID string, contact Contact, req *VerificationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("recovery share delivery", log.KV{
		"ownerId":   ownerID,
		"contactId": contact.ID,
		"requestId": req.ID,
	})
	return nil
}

func (l *LogMessenger) DeliverCode(ctx context.Context, ownerID string, contact Contact, _ string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("verification code delivery", log.KV{
		"ownerId":   ownerID,
		"contactId": contact.ID,
		"expiresAt": expiresAt,
	})
	return nil
}

// SubjectPublisher publishes a JSON document to a subject; *nats.Producer satisfies it
type SubjectPublisher interface {
	PublishJSONMsg(subject string, data interface{}) error
}

// NatsMessenger hands deliveries to the chat bridge through NATS subjects.
// Shares go to <subject>.share and codes to <subject>.code
type NatsMessenger struct {
	pub          SubjectPublisher
	shareSubject string
	codeSubject  string
}

func NewNatsMessenger(pub SubjectPublisher, subject string) *NatsMessenger {
	return &NatsMessenger{
		pub:          pub,
		shareSubject: subject + ShareSubjectSuffix,
		codeSubject:  subject + CodeSubjectSuffix,
	}
}

func (n *NatsMessenger) DeliverShare(ctx context.Context, ownerID string, contact Contact, req *VerificationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.pub.PublishJSONMsg(n.shareSubject, &ShareDelivery{
		RequestID: req.ID,
		OwnerID:   ownerID,
		ContactID: contact.ID,
		ShareID:   req.ShareID,
		ShareData: req.ShareData,
		ExpiresAt: req.ExpiresAt,
		Text:      shareText(contact, req.Message),
	})
}

func (n *NatsMessenger) DeliverCode(ctx context.Context, ownerID string, contact Contact, code string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.pub.PublishJSONMsg(n.codeSubject, &CodeDelivery{
		OwnerID:   ownerID,
		ContactID: contact.ID,
		Code:      code,
		ExpiresAt: expiresAt,
		Text:      codeText(contact, code, expiresAt),
	})
}
