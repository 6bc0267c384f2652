package recovery

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/oddbit-project/walletguard/provider/kv"
)

const (
	metaPrefix     = "rc:meta:"
	requestPrefix  = "rc:req:"
	codePrefix     = "rc:code:"
	contactsPrefix = "rc:contacts:"
)

type store struct {
	kv kv.KV
}

func esc(s string) string {
	return url.QueryEscape(s)
}

func metaOwnerPrefix(ownerID string) string {
	return metaPrefix + esc(ownerID) + ":"
}

func metaKey(ownerID, contactID string) string {
	return metaOwnerPrefix(ownerID) + esc(contactID)
}

func requestKey(id string) string {
	return requestPrefix + esc(id)
}

func codeKey(ownerID, contactID string) string {
	return codePrefix + esc(ownerID) + ":" + esc(contactID)
}

func contactsKey(ownerID string) string {
	return contactsPrefix + esc(ownerID)
}

func (s *store) put(key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.SetTTL(key, data, ttl)
}

func (s *store) get(key string, v interface{}) (bool, error) {
	data, err := s.kv.Get(key)
	if err != nil || data == nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (s *store) metadata(ownerID, contactID string) (*ContactMetadata, error) {
	meta := &ContactMetadata{}
	found, err := s.get(metaKey(ownerID, contactID), meta)
	if err != nil || !found {
		return nil, err
	}
	return meta, nil
}

func (s *store) putMetadata(ownerID string, meta *ContactMetadata) error {
	return s.put(metaKey(ownerID, meta.ID), meta, 0)
}

// allMetadata returns the owner's metadata keyed by contact id
func (s *store) allMetadata(ownerID string) (map[string]*ContactMetadata, error) {
	keys, err := s.kv.Keys(metaOwnerPrefix(ownerID))
	if err != nil {
		return nil, err
	}
	result := make(map[string]*ContactMetadata, len(keys))
	for _, key := range keys {
		meta := &ContactMetadata{}
		found, err := s.get(key, meta)
		if err != nil {
			return nil, err
		}
		if found {
			result[meta.ID] = meta
		}
	}
	return result, nil
}

func (s *store) request(id string) (*VerificationRequest, error) {
	req := &VerificationRequest{}
	found, err := s.get(requestKey(id), req)
	if err != nil || !found {
		return nil, err
	}
	return req, nil
}

func (s *store) putRequest(req *VerificationRequest) error {
	return s.put(requestKey(req.ID), req, 0)
}

func (s *store) deleteRequest(id string) error {
	return s.kv.Delete(requestKey(id))
}

func (s *store) code(ownerID, contactID string) (*verificationCode, error) {
	code := &verificationCode{}
	found, err := s.get(codeKey(ownerID, contactID), code)
	if err != nil || !found {
		return nil, err
	}
	return code, nil
}

func (s *store) contacts(ownerID string) ([]Contact, error) {
	contacts := make([]Contact, 0)
	if _, err := s.get(contactsKey(ownerID), &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}
