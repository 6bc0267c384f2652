package recovery

import (
	"time"
)

// Contact is a Telegram contact as supplied by the client
type Contact struct {
	ID         string  `json:"id"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName,omitempty"`
	Username   string  `json:"username,omitempty"`
	IsVerified bool    `json:"isVerified"`
	TrustLevel float64 `json:"trustLevel"`
}

// VerificationStatus of a contact
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusRejected VerificationStatus = "rejected"
)

// ContactMetadata is the stored view of a contact, one per owner and contact
type ContactMetadata struct {
	ID                   string             `json:"id"`
	TrustLevel           float64            `json:"trustLevel"`
	VerificationStatus   VerificationStatus `json:"verificationStatus"`
	LastVerified         time.Time          `json:"lastVerified"`
	VerificationAttempts int                `json:"verificationAttempts"`
	Notes                string             `json:"notes,omitempty"`
}

// RequestStatus of a share delivery
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// VerificationRequest tracks a recovery share handed to a contact
type VerificationRequest struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"ownerId"`
	ContactID string        `json:"contactId"`
	ShareID   string        `json:"shareId"`
	ShareData []byte        `json:"shareData"`
	Encrypted bool          `json:"encrypted"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Status    RequestStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
}

// Expired returns true if the request can no longer be resolved at now
func (r *VerificationRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// RecoveryShare is one fragment of the wallet recovery secret
type RecoveryShare struct {
	ID        string    `json:"id"`
	ShareData []byte    `json:"shareData"`
	ContactID string    `json:"contactId"`
	Encrypted bool      `json:"encrypted"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContactGroups partitions contacts by verification status
type ContactGroups struct {
	Trusted  []Contact `json:"trusted"`
	Pending  []Contact `json:"pending"`
	Rejected []Contact `json:"rejected"`
}

// verificationCode is the stored form of an issued code
type verificationCode struct {
	Digest    string    `json:"digest"`
	ExpiresAt time.Time `json:"expiresAt"`
}
