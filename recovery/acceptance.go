package recovery

import (
	"context"
	"encoding/json"

	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/provider/nats"
	"github.com/oddbit-project/walletguard/utils"
)

const ErrInvalidAcceptance = utils.Error("invalid share acceptance message")

// Acceptance is the reply relayed by the chat bridge when a contact answers a share request
type Acceptance struct {
	RequestID string `json:"requestId"`
	ContactID string `json:"contactId"`
	Accepted  bool   `json:"accepted"`
}

// AcceptanceHandler applies acceptance messages to the Manager
type AcceptanceHandler struct {
	manager *Manager
	logger  *log.Logger
}

func NewAcceptanceHandler(m *Manager) *AcceptanceHandler {
	return &AcceptanceHandler{
		manager: m,
		logger:  log.NewWithComponent("recovery", "acceptance"),
	}
}

// Consume matches nats.ConsumerFunc
func (h *AcceptanceHandler) Consume(ctx context.Context, msg nats.Message) error {
	var a Acceptance
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		h.logger.Warn("discarding malformed acceptance", log.KV{
			"subject": msg.Subject,
			"error":   err.Error(),
		})
		return ErrInvalidAcceptance
	}
	if a.RequestID == "" || a.ContactID == "" {
		return ErrInvalidAcceptance
	}

	var err error
	if a.Accepted {
		err = h.manager.AcceptRequest(ctx, a.RequestID, a.ContactID)
	} else {
		err = h.manager.RejectRequest(ctx, a.RequestID, a.ContactID)
	}
	if err != nil {
		h.logger.Warn("share acceptance not applied", log.KV{
			"requestId": a.RequestID,
			"contactId": a.ContactID,
			"accepted":  a.Accepted,
			"error":     err.Error(),
		})
	}
	return err
}
