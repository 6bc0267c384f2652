package security

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oddbit-project/walletguard/provider/kv"
)

const (
	eventPrefix   = "sec:event:"
	eventIDPrefix = "sec:eventid:"
	alertPrefix   = "sec:alert:"
	blockPrefix   = "sec:block:"
)

// store maps the security log onto a kv.KV.
//
// Event keys are sec:event:<user>:<type>:<unix nanos>:<id>, so the trailing
// window of a user's events can be counted from the key list alone
type store struct {
	kv kv.KV
}

// storedKey is a decoded event or alert key
type storedKey struct {
	key       string
	userID    string
	eventType EventType
	ts        time.Time
	id        string
}

func escapeUser(userID string) string {
	return url.QueryEscape(userID)
}

func formatTS(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func parseTS(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

func eventKey(e *Event) string {
	return eventPrefix + escapeUser(e.UserID) + ":" + string(e.Type) + ":" + formatTS(e.Timestamp) + ":" + e.ID
}

func eventUserPrefix(userID string) string {
	return eventPrefix + escapeUser(userID) + ":"
}

func eventTypePrefix(userID string, t EventType) string {
	return eventUserPrefix(userID) + string(t) + ":"
}

func parseEventKey(key string) (storedKey, bool) {
	parts := strings.Split(strings.TrimPrefix(key, eventPrefix), ":")
	if len(parts) != 4 {
		return storedKey{}, false
	}
	user, err := url.QueryUnescape(parts[0])
	if err != nil {
		return storedKey{}, false
	}
	ts, ok := parseTS(parts[2])
	if !ok {
		return storedKey{}, false
	}
	return storedKey{key: key, userID: user, eventType: EventType(parts[1]), ts: ts, id: parts[3]}, true
}

func alertKey(a *Alert) string {
	return alertPrefix + formatTS(a.Timestamp) + ":" + a.ID
}

func parseAlertKey(key string) (storedKey, bool) {
	parts := strings.Split(strings.TrimPrefix(key, alertPrefix), ":")
	if len(parts) != 2 {
		return storedKey{}, false
	}
	ts, ok := parseTS(parts[0])
	if !ok {
		return storedKey{}, false
	}
	return storedKey{key: key, ts: ts, id: parts[1]}, true
}

func blockKey(userID string) string {
	return blockPrefix + escapeUser(userID)
}

func (s *store) putJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Set(key, data)
}

// getJSON returns false if the key does not exist
func (s *store) getJSON(key string, v interface{}) (bool, error) {
	data, err := s.kv.Get(key)
	if err != nil || data == nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (s *store) putEvent(e *Event) error {
	key := eventKey(e)
	if err := s.putJSON(key, e); err != nil {
		return err
	}
	return s.kv.Set(eventIDPrefix+e.ID, []byte(key))
}

func (s *store) eventByID(id string) (*Event, string, error) {
	ref, err := s.kv.Get(eventIDPrefix + id)
	if err != nil || ref == nil {
		return nil, "", err
	}
	e := &Event{}
	found, err := s.getJSON(string(ref), e)
	if err != nil || !found {
		return nil, "", err
	}
	return e, string(ref), nil
}

func (s *store) deleteEvent(k storedKey) error {
	if err := s.kv.Delete(k.key); err != nil {
		return err
	}
	return s.kv.Delete(eventIDPrefix + k.id)
}

// eventKeys returns decoded keys under prefix, newest first
func (s *store) eventKeys(prefix string) ([]storedKey, error) {
	keys, err := s.kv.Keys(prefix)
	if err != nil {
		return nil, err
	}
	result := make([]storedKey, 0, len(keys))
	for _, key := range keys {
		if k, ok := parseEventKey(key); ok {
			result = append(result, k)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// countSince counts userID events of type t with timestamp >= since
func (s *store) countSince(userID string, t EventType, since time.Time) (int, error) {
	keys, err := s.eventKeys(eventTypePrefix(userID, t))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, k := range keys {
		if !k.ts.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *store) events(filter EventFilter) ([]Event, error) {
	prefix := eventPrefix
	switch {
	case filter.UserID != "" && filter.Type != "":
		prefix = eventTypePrefix(filter.UserID, filter.Type)
	case filter.UserID != "":
		prefix = eventUserPrefix(filter.UserID)
	}
	keys, err := s.eventKeys(prefix)
	if err != nil {
		return nil, err
	}

	result := make([]Event, 0)
	for _, k := range keys {
		if len(result) >= filter.Limit {
			break
		}
		if filter.Type != "" && k.eventType != filter.Type {
			continue
		}
		e := Event{}
		found, err := s.getJSON(k.key, &e)
		if err != nil {
			return nil, err
		}
		if found {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *store) putAlert(a *Alert) error {
	return s.putJSON(alertKey(a), a)
}

func (s *store) alertKeys() ([]storedKey, error) {
	keys, err := s.kv.Keys(alertPrefix)
	if err != nil {
		return nil, err
	}
	result := make([]storedKey, 0, len(keys))
	for _, key := range keys {
		if k, ok := parseAlertKey(key); ok {
			result = append(result, k)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *store) alerts(limit int) ([]Alert, error) {
	keys, err := s.alertKeys()
	if err != nil {
		return nil, err
	}
	result := make([]Alert, 0)
	for _, k := range keys {
		if len(result) >= limit {
			break
		}
		a := Alert{}
		found, err := s.getJSON(k.key, &a)
		if err != nil {
			return nil, err
		}
		if found {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *store) block(userID string) (*BlockRecord, error) {
	b := &BlockRecord{}
	found, err := s.getJSON(blockKey(userID), b)
	if err != nil || !found {
		return nil, err
	}
	return b, nil
}

func (s *store) putBlock(b *BlockRecord, ttl time.Duration) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.kv.SetTTL(blockKey(b.UserID), data, ttl)
}

func (s *store) deleteBlock(userID string) error {
	return s.kv.Delete(blockKey(userID))
}

func sortNewestFirst(keys []storedKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].ts.Equal(keys[j].ts) {
			return keys[i].key > keys[j].key
		}
		return keys[i].ts.After(keys[j].ts)
	})
}
