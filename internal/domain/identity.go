package domain

import "fmt"

// Identity names the owner of a cart. Exactly one of SessionKey and UserID is set.
type Identity struct {
	SessionKey string
	UserID     string
}

func SessionIdentity(sessionKey string) Identity {
	return Identity{SessionKey: sessionKey}
}

func UserIdentity(userID string) Identity {
	return Identity{UserID: userID}
}

func (i Identity) IsUser() bool {
	return i.UserID != ""
}

func (i Identity) Valid() bool {
	return (i.SessionKey == "") != (i.UserID == "")
}

// Key is a stable string form, used for cache keys and singleflight groups.
func (i Identity) Key() string {
	if i.IsUser() {
		return fmt.Sprintf("user:%s", i.UserID)
	}
	return fmt.Sprintf("session:%s", i.SessionKey)
}

func (i Identity) String() string {
	return i.Key()
}
