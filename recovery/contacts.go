package recovery

import (
	"context"
	"encoding/json"

	"github.com/oddbit-project/walletguard/provider/kv"
)

// ContactSource returns the contacts known for an owner
type ContactSource interface {
	Contacts(ctx context.Context, ownerID string) ([]Contact, error)
}

// ContactDirectory keeps the contact list last synced by the client
type ContactDirectory struct {
	kv kv.KV
}

func NewContactDirectory(backend kv.KV) *ContactDirectory {
	return &ContactDirectory{kv: backend}
}

// SetContacts replaces the owner's contact list. Entries without an id or with
// a trust level outside [0,1] are rejected
func (d *ContactDirectory) SetContacts(ctx context.Context, ownerID string, contacts []Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ownerID == "" {
		return ErrMissingOwnerID
	}
	for _, c := range contacts {
		if c.ID == "" {
			return ErrMissingContactID
		}
		if !validTrust(c.TrustLevel) {
			return ErrInvalidTrustLevel
		}
	}
	if contacts == nil {
		contacts = []Contact{}
	}
	data, err := json.Marshal(contacts)
	if err != nil {
		return err
	}
	return d.kv.Set(contactsKey(ownerID), data)
}

// Contacts returns the stored contact list, empty if none was synced
func (d *ContactDirectory) Contacts(ctx context.Context, ownerID string) ([]Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return (&store{kv: d.kv}).contacts(ownerID)
}
