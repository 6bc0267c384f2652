package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/oddbit-project/walletguard/provider/httpserver/auth"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
	"github.com/oddbit-project/walletguard/recovery"
)

const maxContacts = 64

type contactsRequest struct {
	Contacts []recovery.Contact `json:"contacts" binding:"max=64"`
}

type codeRequest struct {
	Code string `json:"code" binding:"required,max=16"`
}

type trustRequest struct {
	TrustLevel *float64 `json:"trustLevel" binding:"required"`
}

type shareRequest struct {
	ContactID string `json:"contactId" binding:"required"`
	ShareData []byte `json:"shareData" binding:"required"`
	Message   string `json:"message"`
}

type receiveRequest struct {
	ContactID string `json:"contactId" binding:"required"`
}

type codeResponse struct {
	ContactID string    `json:"contactId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type shareResponse struct {
	RequestID string                 `json:"requestId"`
	ContactID string                 `json:"contactId"`
	ShareID   string                 `json:"shareId"`
	Status    recovery.RequestStatus `json:"status"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

// recoveryError maps recovery manager errors to responses; unknown errors are 500s
func recoveryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recovery.ErrContactNotFound), errors.Is(err, recovery.ErrRequestNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, recovery.ErrRequestExpired):
		response.Error(c, http.StatusGone, err.Error())
	case errors.Is(err, recovery.ErrContactIDMismatch),
		errors.Is(err, recovery.ErrShareNotAccepted),
		errors.Is(err, recovery.ErrRequestNotPending),
		errors.Is(err, recovery.ErrContactRejected),
		errors.Is(err, recovery.ErrDecryptFailed):
		response.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, recovery.ErrInvalidVerificationCode):
		response.Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, recovery.ErrInvalidTrustLevel),
		errors.Is(err, recovery.ErrMissingContactID),
		errors.Is(err, recovery.ErrEmptyShare):
		response.Http400(c, err.Error())
	default:
		response.Http500(c, err)
	}
}

// contact finds id in the caller's contact list
func (h *Handler) contact(c *gin.Context, id string) (recovery.Contact, bool) {
	contacts, err := h.services.Contacts.Contacts(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Http500(c, err)
		return recovery.Contact{}, false
	}
	for _, ct := range contacts {
		if ct.ID == id {
			return ct, true
		}
	}
	recoveryError(c, recovery.ErrContactNotFound)
	return recovery.Contact{}, false
}

func (h *Handler) validateContact(ct recovery.Contact) error {
	if err := h.services.Gateway.Validate(gateway.Text, ct.FirstName); err != nil {
		return err
	}
	if ct.LastName != "" {
		if err := h.services.Gateway.Validate(gateway.Text, ct.LastName); err != nil {
			return err
		}
	}
	if ct.Username != "" {
		if err := h.services.Gateway.Validate(gateway.Username, ct.Username); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) listContacts(c *gin.Context) {
	response.Success(c, h.services.Recovery.ManageTrustedContacts(c.Request.Context(), auth.UserID(c)))
}

// replaceContacts stores the caller's contact list; verification state is owned by the server
func (h *Handler) replaceContacts(c *gin.Context) {
	req := &contactsRequest{}
	if !bind(c, req) {
		return
	}
	if len(req.Contacts) > maxContacts {
		response.Http400(c, "too many contacts")
		return
	}
	problems := map[string]string{}
	for i := range req.Contacts {
		req.Contacts[i].IsVerified = false
		if err := h.validateContact(req.Contacts[i]); err != nil {
			problems[req.Contacts[i].ID] = err.Error()
		}
	}
	if len(problems) > 0 {
		response.ValidationError(c, problems)
		return
	}
	if err := h.services.Contacts.SetContacts(c.Request.Context(), auth.UserID(c), req.Contacts); err != nil {
		recoveryError(c, err)
		return
	}
	response.Success(c, h.services.Recovery.ManageTrustedContacts(c.Request.Context(), auth.UserID(c)))
}

// selectContacts returns the contacts that would receive recovery shares.
// minTrust defaults to the configured recovery threshold
func (h *Handler) selectContacts(c *gin.Context) {
	mgr := h.services.Recovery
	minTrust := mgr.MinTrustLevel()
	if raw := c.Query("minTrust"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
			response.Http400(c, recovery.ErrInvalidTrustLevel.Error())
			return
		}
		minTrust = v
	}
	ctx := c.Request.Context()
	ownerID := auth.UserID(c)
	contacts, err := h.services.Contacts.Contacts(ctx, ownerID)
	if err != nil {
		response.Http500(c, err)
		return
	}
	response.Success(c, mgr.SelectTrustedContacts(ctx, ownerID, contacts, minTrust))
}

func (h *Handler) issueCode(c *gin.Context) {
	ct, ok := h.contact(c, c.Param("id"))
	if !ok {
		return
	}
	expiresAt, err := h.services.Recovery.IssueVerificationCode(c.Request.Context(), auth.UserID(c), ct)
	if err != nil {
		recoveryError(c, err)
		return
	}
	response.Created(c, codeResponse{ContactID: ct.ID, ExpiresAt: expiresAt})
}

func (h *Handler) verifyContact(c *gin.Context) {
	req := &codeRequest{}
	if !bind(c, req) {
		return
	}
	ct, ok := h.contact(c, c.Param("id"))
	if !ok {
		return
	}
	md, err := h.services.Recovery.VerifyContact(c.Request.Context(), auth.UserID(c), ct, req.Code)
	if err != nil {
		recoveryError(c, err)
		return
	}
	response.Success(c, md)
}

func (h *Handler) updateTrust(c *gin.Context) {
	req := &trustRequest{}
	if !bind(c, req) {
		return
	}
	ct, ok := h.contact(c, c.Param("id"))
	if !ok {
		return
	}
	md, err := h.services.Recovery.UpdateContactTrustLevel(c.Request.Context(), auth.UserID(c), ct.ID, *req.TrustLevel)
	if err != nil {
		recoveryError(c, err)
		return
	}
	response.Success(c, md)
}

func (h *Handler) sendShare(c *gin.Context) {
	req := &shareRequest{}
	if !bind(c, req) {
		return
	}
	if req.Message != "" {
		if err := h.services.Gateway.Validate(gateway.Text, req.Message); err != nil {
			response.ValidationError(c, map[string]string{"message": err.Error()})
			return
		}
	}
	ct, ok := h.contact(c, req.ContactID)
	if !ok {
		return
	}
	mgr := h.services.Recovery
	sent, err := mgr.SendShareToContact(c.Request.Context(), auth.UserID(c), mgr.NewShare(req.ShareData), ct, req.Message)
	if err != nil {
		recoveryError(c, err)
		return
	}
	response.Created(c, shareResponse{
		RequestID: sent.ID,
		ContactID: sent.ContactID,
		ShareID:   sent.ShareID,
		Status:    sent.Status,
		ExpiresAt: sent.ExpiresAt,
	})
}

// receiveShare returns the decrypted share once the contact accepted the request
func (h *Handler) receiveShare(c *gin.Context) {
	req := &receiveRequest{}
	if !bind(c, req) {
		return
	}
	ct, ok := h.contact(c, req.ContactID)
	if !ok {
		return
	}
	mgr := h.services.Recovery
	share, err := mgr.ReceiveShareFromContact(c.Request.Context(), auth.UserID(c), c.Param("id"), ct.ID)
	if err != nil {
		recoveryError(c, err)
		return
	}
	if share.Encrypted {
		if share, err = mgr.DecryptShareFromContact(share, ct); err != nil {
			recoveryError(c, err)
			return
		}
	}
	response.Success(c, share)
}
