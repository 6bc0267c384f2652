package telegram

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oddbit-project/walletguard/crypt/signing"
)

const (
	FieldHash         = "hash"
	FieldAuthDate     = "auth_date"
	FieldUser         = "user"
	FieldQueryID      = "query_id"
	FieldStartParam   = "start_param"
	FieldChatType     = "chat_type"
	FieldChatInstance = "chat_instance"

	// key of the first HMAC stage, fixed by the Telegram Mini App protocol
	webAppDataKey = "WebAppData"
)

// User is the user object embedded in initData
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// InitData is a decoded, not yet verified, initData string
type InitData struct {
	QueryID      string
	User         *User // nil when absent or malformed
	AuthDate     time.Time
	Hash         string
	StartParam   string
	ChatType     string
	ChatInstance string
	// Fields holds every decoded key/value pair, hash included
	Fields url.Values
}

// ParseInitData decodes initData without checking its signature
func ParseInitData(initData string) (*InitData, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, ErrMalformedInitData
	}
	result := &InitData{
		QueryID:      values.Get(FieldQueryID),
		Hash:         values.Get(FieldHash),
		StartParam:   values.Get(FieldStartParam),
		ChatType:     values.Get(FieldChatType),
		ChatInstance: values.Get(FieldChatInstance),
		User:         parseUser(values.Get(FieldUser)),
		Fields:       values,
	}
	if ts, err := parseAuthDate(values.Get(FieldAuthDate)); err == nil {
		result.AuthDate = time.Unix(ts, 0)
	}
	return result, nil
}

func parseAuthDate(v string) (int64, error) {
	if v == "" {
		return 0, ErrMissingAuthDate
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, ErrInvalidAuthDate
	}
	return ts, nil
}

func parseUser(raw string) *User {
	if raw == "" {
		return nil
	}
	u := &User{}
	if err := json.Unmarshal([]byte(raw), u); err != nil || u.ID == 0 {
		return nil
	}
	return u
}

// DataCheckString builds the canonical string covered by the hash: every pair
// except hash, sorted by key, formatted as key=value and joined with '\n'
func DataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != FieldHash {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			lines = append(lines, k+"="+v)
		}
	}
	return strings.Join(lines, "\n")
}

// secretKey computes HMAC-SHA256(key="WebAppData", data=botToken)
func secretKey(botToken []byte) []byte {
	return signing.HMACSHA256([]byte(webAppDataKey), botToken)
}

// computeHash returns the hex signature of values for botToken
func computeHash(values url.Values, botToken []byte) string {
	return signing.HexHMACSHA256(secretKey(botToken), []byte(DataCheckString(values)))
}

// SignInitData returns an encoded initData string for fields, signed with botToken.
// Useful for tests and local tooling that impersonate the Telegram client
func SignInitData(fields map[string]string, botToken string) string {
	values := url.Values{}
	for k, v := range fields {
		if k != FieldHash {
			values.Set(k, v)
		}
	}
	values.Set(FieldHash, computeHash(values, []byte(botToken)))
	return values.Encode()
}

// ExtractUserID returns the user id from initData without verifying it.
// Only use it on data that already passed validation
func ExtractUserID(initData string) string {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return ""
	}
	if u := parseUser(values.Get(FieldUser)); u != nil {
		return strconv.FormatInt(u.ID, 10)
	}
	return ""
}

// IsExpired returns true if initData has no valid auth_date or is older than maxAge
func IsExpired(initData string, maxAge time.Duration) bool {
	return isExpiredAt(initData, maxAge, time.Now())
}

func isExpiredAt(initData string, maxAge time.Duration, now time.Time) bool {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return true
	}
	ts, err := parseAuthDate(values.Get(FieldAuthDate))
	if err != nil {
		return true
	}
	return now.Unix()-ts > int64(normalizeMaxAge(maxAge).Seconds())
}
