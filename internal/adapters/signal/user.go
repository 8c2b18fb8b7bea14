package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Dial/internal/domain"
)

// wireUser accepts every user shape the server sends: a bare id string, or an
// object keyed by _id or id with one of several display name fields. An
// invalid user decodes to the zero UserRef so one bad entry does not spoil a
// presence list.
type wireUser struct {
	ref domain.UserRef
}

func (w *wireUser) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		w.ref, _ = domain.NewUserRef(id, "", "")
		return nil
	}

	var obj struct {
		MongoID     string `json:"_id"`
		ID          string `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		Username    string `json:"username"`
		Avatar      string `json:"avatar"`
		AvatarRef   string `json:"avatarRef"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	w.ref, _ = domain.NewUserRef(
		firstNonEmpty(obj.ID, obj.MongoID),
		firstNonEmpty(obj.DisplayName, obj.Name, obj.Username),
		firstNonEmpty(obj.AvatarRef, obj.Avatar),
	)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func refs(users []wireUser) []domain.UserRef {
	out := make([]domain.UserRef, 0, len(users))
	for _, u := range users {
		out = append(out, u.ref)
	}
	return out
}
