// Package recovery implements trusted-contact social recovery.
//
// The Manager selects the contacts that will hold wallet recovery shares,
// encrypts a share per contact, tracks the delivery handshake and runs the
// one-time code verification that raises a contact's trust level. State lives
// in a kv.KV store keyed by owner; mutations are serialized per owner.
package recovery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oddbit-project/walletguard/crypt/pin"
	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/crypt/signing"
	"github.com/oddbit-project/walletguard/crypt/token"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/oddbit-project/walletguard/security"
	"github.com/oddbit-project/walletguard/types/keylock"
	"github.com/oddbit-project/walletguard/types/periodic"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrNilStore                = utils.Error("recovery store is nil")
	ErrNilConfig               = utils.Error("recovery config is nil")
	ErrMissingOwnerID          = utils.Error("missing owner id")
	ErrMissingContactID        = utils.Error("missing contact id")
	ErrInvalidTrustLevel       = utils.Error("trust level must be between 0 and 1")
	ErrRequestNotFound         = utils.Error("verification request not found")
	ErrContactIDMismatch       = utils.Error("contact id does not match the verification request")
	ErrShareNotAccepted        = utils.Error("recovery share has not been accepted by the contact")
	ErrRequestExpired          = utils.Error("verification request has expired")
	ErrRequestNotPending       = utils.Error("verification request is no longer pending")
	ErrInvalidVerificationCode = utils.Error("invalid verification code")
	ErrContactRejected         = utils.Error("contact has been rejected")
	ErrContactNotFound         = utils.Error("contact not found")
	ErrEmptyShare              = utils.Error("recovery share is empty")
	ErrShareEncrypted          = utils.Error("recovery share is already encrypted")
	ErrShareNotEncrypted       = utils.Error("recovery share is not encrypted")
	ErrDecryptFailed           = utils.Error("recovery share could not be decrypted")
	ErrInternal                = utils.Error("internal recovery manager error")

	trustStep  = 0.1
	baseTrust  = 0.5
	requestLen = 16
)

// Manager is the Trusted-Contact / Social-Recovery Manager
type Manager struct {
	cfg       *Config
	secret    *secure.Credential
	store     *store
	contacts  ContactSource
	messenger Messenger
	auditor   Auditor
	logger    *log.Logger
	now       func() time.Time
	locks     *keylock.KeyLock
	sweeper   *periodic.Task
}

type Option func(*Manager)

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithContactSource replaces the kv-backed contact directory
func WithContactSource(src ContactSource) Option {
	return func(m *Manager) {
		if src != nil {
			m.contacts = src
		}
	}
}

func WithMessenger(msg Messenger) Option {
	return func(m *Manager) {
		if msg != nil {
			m.messenger = msg
		}
	}
}

// WithAuditor records every recovery lifecycle step in a security event log
func WithAuditor(a Auditor) Option {
	return func(m *Manager) {
		m.auditor = a
	}
}

// NewManager creates a Recovery Manager backed by backend
func NewManager(cfg *Config, backend kv.KV, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if backend == nil {
		return nil, ErrNilStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret, err := secure.NewCredentialFromConfig(cfg.Secret, false)
	if err != nil {
		return nil, err
	}
	raw, err := secret.GetBytes()
	if err != nil {
		secret.Clear()
		return nil, err
	}
	weak := len(raw) < MinSecretLength
	utils.Zero(raw)
	if weak {
		secret.Clear()
		return nil, ErrWeakSecret
	}

	m := &Manager{
		cfg:    cfg,
		secret: secret,
		store:  &store{kv: backend},
		logger: log.New("recovery"),
		now:    time.Now,
		locks:  keylock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.contacts == nil {
		m.contacts = NewContactDirectory(backend)
	}
	if m.messenger == nil {
		m.messenger = NewLogMessenger(m.logger)
	}
	if cfg.SweepIntervalSeconds > 0 {
		m.sweeper, err = periodic.New(time.Duration(cfg.SweepIntervalSeconds)*time.Second, m.sweep)
		if err != nil {
			secret.Clear()
			return nil, err
		}
	}
	return m, nil
}

// recoverFault must be deferred directly; it logs a panic and runs onFault
func (m *Manager) recoverFault(op string, onFault func()) {
	if r := recover(); r != nil {
		m.logger.Error(fmt.Errorf("%w: %v", ErrInternal, r), "recovery operation failed", log.KV{
			"operation": op,
		})
		onFault()
	}
}

func (m *Manager) audit(ctx context.Context, t security.EventType, ownerID string, details map[string]interface{}, severity security.Severity) {
	if m.auditor == nil {
		return
	}
	if _, err := m.auditor.RecordEvent(ctx, t, ownerID, details, severity); err != nil {
		m.logger.Warn("failed to record recovery audit event", log.KV{
			"eventType": string(t),
			"ownerId":   ownerID,
			"error":     err.Error(),
		})
	}
}

// MinTrustLevel is the configured default threshold for SelectTrustedContacts
func (m *Manager) MinTrustLevel() float64 {
	return m.cfg.MinTrustLevel
}

// SelectTrustedContacts picks the contacts that should hold recovery shares.
// Candidates are contacts other than the owner whose trust is at least minTrust;
// stored trust levels override the supplied ones and rejected contacts are skipped.
// All verified candidates are returned, backfilled with the most trusted
// unverified ones up to MinContacts. The result is ordered by descending trust
func (m *Manager) SelectTrustedContacts(ctx context.Context, ownerID string, contacts []Contact, minTrust float64) (result []Contact) {
	defer m.recoverFault("selectTrustedContacts", func() {
		result = []Contact{}
	})
	var err error
	result, err = m.selectTrustedContacts(ctx, ownerID, contacts, minTrust)
	if err != nil {
		m.logger.Error(err, "failed to select trusted contacts", log.KV{
			"ownerId": ownerID,
		})
		return []Contact{}
	}
	return result
}

func (m *Manager) selectTrustedContacts(ctx context.Context, ownerID string, contacts []Contact, minTrust float64) ([]Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, ErrMissingOwnerID
	}
	if math.IsNaN(minTrust) || !validTrust(minTrust) {
		return nil, ErrInvalidTrustLevel
	}
	meta, err := m.store.allMetadata(ownerID)
	if err != nil {
		return nil, err
	}

	candidates := make([]Contact, 0, len(contacts))
	seen := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		if c.ID == "" || c.ID == ownerID {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if md, ok := meta[c.ID]; ok {
			if md.VerificationStatus == StatusRejected {
				continue
			}
			c.TrustLevel = md.TrustLevel
		}
		if c.TrustLevel < minTrust {
			continue
		}
		candidates = append(candidates, c)
	}
	sortByTrust(candidates)

	selected := make([]Contact, 0, len(candidates))
	picked := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if md, ok := meta[c.ID]; ok && md.VerificationStatus == StatusVerified {
			selected = append(selected, c)
			picked[c.ID] = struct{}{}
		}
	}
	for _, c := range candidates {
		if len(selected) >= m.cfg.MinContacts {
			break
		}
		if _, ok := picked[c.ID]; !ok {
			selected = append(selected, c)
		}
	}
	sortByTrust(selected)

	m.logger.Info("trusted contacts selected", log.KV{
		"ownerId":  ownerID,
		"total":    len(contacts),
		"selected": len(selected),
	})
	return selected, nil
}

func sortByTrust(contacts []Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].TrustLevel > contacts[j].TrustLevel
	})
}

// NewShare wraps plaintext share bytes in a RecoveryShare with a fresh id
func (m *Manager) NewShare(data []byte) *RecoveryShare {
	return &RecoveryShare{
		ID:        uuid.NewString(),
		ShareData: data,
		CreatedAt: m.now(),
	}
}

// EncryptShareForContact seals a plaintext share with the key derived for contact
func (m *Manager) EncryptShareForContact(share *RecoveryShare, contact Contact) (result *RecoveryShare, err error) {
	defer m.recoverFault("encryptShareForContact", func() {
		result, err = nil, ErrInternal
	})
	if share == nil || len(share.ShareData) == 0 {
		return nil, ErrEmptyShare
	}
	if share.Encrypted {
		return nil, ErrShareEncrypted
	}
	if contact.ID == "" {
		return nil, ErrMissingContactID
	}
	cipher, err := m.contactCipher(contact)
	if err != nil {
		return nil, err
	}
	defer cipher.Clear()

	sealed, err := cipher.Encrypt(share.ShareData)
	if err != nil {
		return nil, err
	}
	return &RecoveryShare{
		ID:        share.ID,
		ShareData: sealed,
		ContactID: contact.ID,
		Encrypted: true,
		CreatedAt: share.CreatedAt,
	}, nil
}

// DecryptShareFromContact opens a share sealed for contact.
// A share sealed for a different contact or trust level fails with ErrDecryptFailed
func (m *Manager) DecryptShareFromContact(share *RecoveryShare, contact Contact) (result *RecoveryShare, err error) {
	defer m.recoverFault("decryptShareFromContact", func() {
		result, err = nil, ErrInternal
	})
	if share == nil || len(share.ShareData) == 0 {
		return nil, ErrEmptyShare
	}
	if !share.Encrypted {
		return nil, ErrShareNotEncrypted
	}
	if contact.ID == "" {
		return nil, ErrMissingContactID
	}
	cipher, err := m.contactCipher(contact)
	if err != nil {
		return nil, err
	}
	defer cipher.Clear()

	plain, err := cipher.Decrypt(share.ShareData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return &RecoveryShare{
		ID:        share.ID,
		ShareData: plain,
		ContactID: contact.ID,
		Encrypted: false,
		CreatedAt: share.CreatedAt,
	}, nil
}

// SendShareToContact stores a pending verification request carrying the share
// (sealed for contact if still plaintext) and hands it to the messenger.
// An empty message uses the configured default
func (m *Manager) SendShareToContact(ctx context.Context, ownerID string, share *RecoveryShare, contact Contact, message string) (result *VerificationRequest, err error) {
	defer m.recoverFault("sendShareToContact", func() {
		result, err = nil, ErrInternal
	})
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, ErrMissingOwnerID
	}
	if contact.ID == "" {
		return nil, ErrMissingContactID
	}
	if share == nil {
		return nil, ErrEmptyShare
	}
	if share.Encrypted && share.ContactID != contact.ID {
		return nil, ErrContactIDMismatch
	}
	if !share.Encrypted {
		if share, err = m.EncryptShareForContact(share, contact); err != nil {
			return nil, err
		}
	}
	if message == "" {
		message = m.cfg.DefaultMessage
	}

	unlock := m.locks.Lock(ownerID)
	defer unlock()

	md, err := m.store.metadata(ownerID, contact.ID)
	if err != nil {
		return nil, err
	}
	if md != nil && md.VerificationStatus == StatusRejected {
		return nil, ErrContactRejected
	}

	id, err := token.GenerateHexToken(requestLen)
	if err != nil {
		return nil, err
	}
	now := m.now()
	req := &VerificationRequest{
		ID:        id,
		OwnerID:   ownerID,
		ContactID: contact.ID,
		ShareID:   share.ID,
		ShareData: share.ShareData,
		Encrypted: true,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.RequestTTL()),
		Status:    RequestPending,
		Message:   message,
	}
	if err = m.store.putRequest(req); err != nil {
		return nil, err
	}
	if err = m.messenger.DeliverShare(ctx, ownerID, contact, req); err != nil {
		if derr := m.store.deleteRequest(req.ID); derr != nil {
			m.logger.Error(derr, "failed to remove undelivered verification request", log.KV{
				"requestId": req.ID,
			})
		}
		return nil, err
	}

	m.audit(ctx, security.EventRecoveryShareSent, ownerID, map[string]interface{}{
		"requestId": req.ID,
		"contactId": contact.ID,
		"expiresAt": req.ExpiresAt,
	}, security.SeverityLow)
	m.logger.Info("recovery share sent", log.KV{
		"ownerId":   ownerID,
		"contactId": contact.ID,
		"requestId": req.ID,
	})
	return req, nil
}

// AcceptRequest records that contactID agreed to hold the share
func (m *Manager) AcceptRequest(ctx context.Context, requestID, contactID string) (err error) {
	defer m.recoverFault("acceptRequest", func() {
		err = ErrInternal
	})
	return m.resolveRequest(ctx, requestID, contactID, RequestAccepted)
}

// RejectRequest records that contactID declined to hold the share
func (m *Manager) RejectRequest(ctx context.Context, requestID, contactID string) (err error) {
	defer m.recoverFault("rejectRequest", func() {
		err = ErrInternal
	})
	return m.resolveRequest(ctx, requestID, contactID, RequestRejected)
}

func (m *Manager) resolveRequest(ctx context.Context, requestID, contactID string, status RequestStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := m.locks.Lock("request:" + requestID)
	defer unlock()

	req, err := m.store.request(requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}
	if req.ContactID != contactID {
		return ErrContactIDMismatch
	}
	if req.Status != RequestPending {
		return ErrRequestNotPending
	}
	if req.Expired(m.now()) {
		req.Status = RequestExpired
		if err = m.store.putRequest(req); err != nil {
			return err
		}
		return ErrRequestExpired
	}
	req.Status = status
	if err = m.store.putRequest(req); err != nil {
		return err
	}

	if status == RequestAccepted {
		m.audit(ctx, security.EventRecoveryShareAccepted, req.OwnerID, map[string]interface{}{
			"requestId": req.ID,
			"contactId": contactID,
		}, security.SeverityLow)
	}
	m.logger.Info("verification request resolved", log.KV{
		"requestId": req.ID,
		"contactId": contactID,
		"status":    string(status),
	})
	return nil
}

// ReceiveShareFromContact returns the sealed share held by contactID once the
// contact has accepted the request. Failures are ErrRequestNotFound,
// ErrContactIDMismatch, ErrShareNotAccepted and ErrRequestExpired, checked in that order
func (m *Manager) ReceiveShareFromContact(ctx context.Context, ownerID, requestID, contactID string) (result *RecoveryShare, err error) {
	defer m.recoverFault("receiveShareFromContact", func() {
		result, err = nil, ErrInternal
	})
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	req, err := m.store.request(requestID)
	if err != nil {
		return nil, err
	}
	if req == nil || req.OwnerID != ownerID {
		return nil, ErrRequestNotFound
	}
	if req.ContactID != contactID {
		return nil, ErrContactIDMismatch
	}
	if req.Status != RequestAccepted {
		return nil, ErrShareNotAccepted
	}
	if req.Expired(m.now()) {
		return nil, ErrRequestExpired
	}

	m.audit(ctx, security.EventRecoveryShareReceived, ownerID, map[string]interface{}{
		"requestId": req.ID,
		"contactId": contactID,
	}, security.SeverityMedium)
	return &RecoveryShare{
		ID:        req.ShareID,
		ShareData: req.ShareData,
		ContactID: req.ContactID,
		Encrypted: req.Encrypted,
		CreatedAt: req.CreatedAt,
	}, nil
}

// IssueVerificationCode generates a one-time code for contact, delivers it
// through the messenger and returns its expiry. Only a keyed digest is stored;
// a new code replaces any previous one
func (m *Manager) IssueVerificationCode(ctx context.Context, ownerID string, contact Contact) (expiresAt time.Time, err error) {
	defer m.recoverFault("issueVerificationCode", func() {
		expiresAt, err = time.Time{}, ErrInternal
	})
	if err = ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if ownerID == "" {
		return time.Time{}, ErrMissingOwnerID
	}
	if contact.ID == "" {
		return time.Time{}, ErrMissingContactID
	}

	unlock := m.locks.Lock(ownerID)
	defer unlock()

	md, err := m.store.metadata(ownerID, contact.ID)
	if err != nil {
		return time.Time{}, err
	}
	if md != nil && md.VerificationStatus == StatusRejected {
		return time.Time{}, ErrContactRejected
	}
	// failed attempts are counted against the record, so it must exist before the code does
	if md == nil {
		if err = m.store.putMetadata(ownerID, pendingMetadata(contact)); err != nil {
			return time.Time{}, err
		}
	}

	code, err := pin.GenerateNumeric(m.cfg.CodeLength)
	if err != nil {
		return time.Time{}, err
	}
	digest, err := m.codeDigest(ownerID, contact.ID, pin.Normalize(code))
	if err != nil {
		return time.Time{}, err
	}
	expiresAt = m.now().Add(m.cfg.CodeTTL())
	stored := &verificationCode{
		Digest:    digest,
		ExpiresAt: expiresAt,
	}
	if err = m.store.put(codeKey(ownerID, contact.ID), stored, m.cfg.CodeTTL()); err != nil {
		return time.Time{}, err
	}
	if err = m.messenger.DeliverCode(ctx, ownerID, contact, code, expiresAt); err != nil {
		if derr := m.store.kv.Delete(codeKey(ownerID, contact.ID)); derr != nil {
			m.logger.Error(derr, "failed to remove undelivered verification code", log.KV{
				"ownerId":   ownerID,
				"contactId": contact.ID,
			})
		}
		return time.Time{}, err
	}
	return expiresAt, nil
}

// VerifyContact checks code against the code issued for contact. On success
// the contact becomes verified and its trust rises by 0.1, capped at 1.
// On failure the attempt counter of the contact is incremented; reaching
// MaxVerificationAttempts rejects the contact. Codes are single use
func (m *Manager) VerifyContact(ctx context.Context, ownerID string, contact Contact, code string) (result *ContactMetadata, err error) {
	defer m.recoverFault("verifyContact", func() {
		result, err = nil, ErrInternal
	})
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, ErrMissingOwnerID
	}
	if contact.ID == "" {
		return nil, ErrMissingContactID
	}

	unlock := m.locks.Lock(ownerID)
	defer unlock()

	md, err := m.store.metadata(ownerID, contact.ID)
	if err != nil {
		return nil, err
	}
	if md != nil && md.VerificationStatus == StatusRejected {
		return nil, ErrContactRejected
	}

	ok, err := m.checkCode(ownerID, contact.ID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, m.failVerification(ctx, ownerID, contact, md)
	}
	if err = m.store.kv.Delete(codeKey(ownerID, contact.ID)); err != nil {
		return nil, err
	}

	if md == nil {
		md = pendingMetadata(contact)
	}
	md.TrustLevel = raiseTrust(md.TrustLevel)
	md.VerificationStatus = StatusVerified
	md.VerificationAttempts = 0
	md.LastVerified = m.now()
	if err = m.store.putMetadata(ownerID, md); err != nil {
		return nil, err
	}

	m.audit(ctx, security.EventContactVerified, ownerID, map[string]interface{}{
		"contactId":  contact.ID,
		"trustLevel": md.TrustLevel,
	}, security.SeverityLow)
	m.logger.Info("contact verified", log.KV{
		"ownerId":    ownerID,
		"contactId":  contact.ID,
		"trustLevel": md.TrustLevel,
	})
	return md, nil
}

func (m *Manager) checkCode(ownerID, contactID, code string) (bool, error) {
	stored, err := m.store.code(ownerID, contactID)
	if err != nil {
		return false, err
	}
	if stored == nil || !m.now().Before(stored.ExpiresAt) {
		return false, nil
	}
	digest, err := m.codeDigest(ownerID, contactID, pin.Normalize(code))
	if err != nil {
		return false, err
	}
	return signing.EqualString(digest, stored.Digest), nil
}

func (m *Manager) failVerification(ctx context.Context, ownerID string, contact Contact, md *ContactMetadata) error {
	if md == nil {
		md = pendingMetadata(contact)
	}
	md.VerificationAttempts++
	rejected := m.cfg.MaxVerificationAttempts > 0 && md.VerificationAttempts >= m.cfg.MaxVerificationAttempts
	if rejected {
		md.VerificationStatus = StatusRejected
	}
	if err := m.store.putMetadata(ownerID, md); err != nil {
		return err
	}
	if rejected {
		m.audit(ctx, security.EventContactRejected, ownerID, map[string]interface{}{
			"contactId": md.ID,
			"attempts":  md.VerificationAttempts,
		}, security.SeverityMedium)
		m.logger.Warn("contact rejected after failed verifications", log.KV{
			"ownerId":   ownerID,
			"contactId": md.ID,
			"attempts":  md.VerificationAttempts,
		})
	}
	return ErrInvalidVerificationCode
}

// pendingMetadata seeds a record from the supplied contact, falling back to baseTrust
func pendingMetadata(contact Contact) *ContactMetadata {
	trust := baseTrust
	if contact.TrustLevel > 0 && validTrust(contact.TrustLevel) {
		trust = roundTrust(contact.TrustLevel)
	}
	return &ContactMetadata{
		ID:                 contact.ID,
		TrustLevel:         trust,
		VerificationStatus: StatusPending,
	}
}

// raiseTrust adds one verification step, capped at 1
func raiseTrust(v float64) float64 {
	return math.Min(1, roundTrust(v+trustStep))
}

func roundTrust(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// VerifiedContacts returns the owner's verified contacts ordered by descending trust
func (m *Manager) VerifiedContacts(ctx context.Context, ownerID string) (result []ContactMetadata) {
	defer m.recoverFault("verifiedContacts", func() {
		result = []ContactMetadata{}
	})
	result = []ContactMetadata{}
	if ctx.Err() != nil {
		return result
	}
	meta, err := m.store.allMetadata(ownerID)
	if err != nil {
		m.logger.Error(err, "failed to list verified contacts", log.KV{
			"ownerId": ownerID,
		})
		return result
	}
	for _, md := range meta {
		if md.VerificationStatus == StatusVerified {
			result = append(result, *md)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].TrustLevel == result[j].TrustLevel {
			return result[i].ID < result[j].ID
		}
		return result[i].TrustLevel > result[j].TrustLevel
	})
	return result
}

// ManageTrustedContacts partitions the owner's contacts by stored verification
// status. Contacts without metadata are pending
func (m *Manager) ManageTrustedContacts(ctx context.Context, ownerID string) (result *ContactGroups) {
	defer m.recoverFault("manageTrustedContacts", func() {
		result = emptyGroups()
	})
	result = emptyGroups()
	if ctx.Err() != nil {
		return result
	}
	contacts, err := m.contacts.Contacts(ctx, ownerID)
	if err != nil {
		m.logger.Error(err, "failed to load contacts", log.KV{
			"ownerId": ownerID,
		})
		return result
	}
	meta, err := m.store.allMetadata(ownerID)
	if err != nil {
		m.logger.Error(err, "failed to load contact metadata", log.KV{
			"ownerId": ownerID,
		})
		return result
	}
	for _, c := range contacts {
		md, ok := meta[c.ID]
		if !ok {
			result.Pending = append(result.Pending, c)
			continue
		}
		c.TrustLevel = md.TrustLevel
		switch md.VerificationStatus {
		case StatusVerified:
			result.Trusted = append(result.Trusted, c)
		case StatusRejected:
			result.Rejected = append(result.Rejected, c)
		default:
			result.Pending = append(result.Pending, c)
		}
	}
	return result
}

func emptyGroups() *ContactGroups {
	return &ContactGroups{
		Trusted:  []Contact{},
		Pending:  []Contact{},
		Rejected: []Contact{},
	}
}

// UpdateContactTrustLevel sets the stored trust of a contact, creating a
// pending record if none exists. The verification status is preserved
func (m *Manager) UpdateContactTrustLevel(ctx context.Context, ownerID, contactID string, trust float64) (result *ContactMetadata, err error) {
	defer m.recoverFault("updateContactTrustLevel", func() {
		result, err = nil, ErrInternal
	})
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, ErrMissingOwnerID
	}
	if contactID == "" {
		return nil, ErrMissingContactID
	}
	if math.IsNaN(trust) || !validTrust(trust) {
		return nil, ErrInvalidTrustLevel
	}

	unlock := m.locks.Lock(ownerID)
	defer unlock()

	md, err := m.store.metadata(ownerID, contactID)
	if err != nil {
		return nil, err
	}
	if md == nil {
		md = pendingMetadata(Contact{ID: contactID})
	}
	md.TrustLevel = roundTrust(trust)
	if err = m.store.putMetadata(ownerID, md); err != nil {
		return nil, err
	}
	return md, nil
}

// ContactMetadata returns the stored record for a contact
func (m *Manager) ContactMetadata(ctx context.Context, ownerID, contactID string) (result *ContactMetadata, err error) {
	defer m.recoverFault("contactMetadata", func() {
		result, err = nil, ErrInternal
	})
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	md, err := m.store.metadata(ownerID, contactID)
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, ErrContactNotFound
	}
	return md, nil
}

// Request returns a verification request owned by ownerID
func (m *Manager) Request(ctx context.Context, ownerID, requestID string) (result *VerificationRequest, err error) {
	defer m.recoverFault("request", func() {
		result, err = nil, ErrInternal
	})
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	req, err := m.store.request(requestID)
	if err != nil {
		return nil, err
	}
	if req == nil || req.OwnerID != ownerID {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// CleanupExpiredRequests deletes every request past its expiry and returns
// how many were removed. Deleting an already removed request is a no-op
func (m *Manager) CleanupExpiredRequests(ctx context.Context) (removed int, err error) {
	defer m.recoverFault("cleanupExpiredRequests", func() {
		err = ErrInternal
	})
	keys, err := m.store.kv.Keys(requestPrefix)
	if err != nil {
		return 0, err
	}
	now := m.now()
	for _, key := range keys {
		if err = ctx.Err(); err != nil {
			return removed, err
		}
		req := &VerificationRequest{}
		found, err := m.store.get(key, req)
		if err != nil {
			return removed, err
		}
		if !found || !req.Expired(now) {
			continue
		}
		if err = m.store.kv.Delete(key); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("expired verification requests removed", log.KV{
			"removed": removed,
		})
	}
	return removed, nil
}

// Start launches the periodic request cleanup, if configured
func (m *Manager) Start() {
	if m.sweeper != nil {
		m.sweeper.Start()
	}
}

func (m *Manager) sweep(ctx context.Context) {
	if _, err := m.CleanupExpiredRequests(ctx); err != nil {
		m.logger.Error(err, "verification request sweep failed")
	}
}

// Shutdown stops the sweeper and clears the key material
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	if m.sweeper != nil {
		err = m.sweeper.Shutdown(ctx)
	}
	m.secret.Clear()
	return err
}
