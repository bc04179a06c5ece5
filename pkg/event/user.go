package event

// User identifies the subject an event is about. Private attributes may be
// used by an evaluation engine but must never leave the process; they are
// stripped when an event is constructed.
type User struct {
	UserID    string                 `json:"userID,omitempty"`
	Email     string                 `json:"email,omitempty"`
	Country   string                 `json:"country,omitempty"`
	CustomIDs map[string]string      `json:"customIDs,omitempty"`
	Custom    map[string]interface{} `json:"custom,omitempty"`
	Private   map[string]interface{} `json:"-"`
}

// sanitized returns a copy safe to attach to an outgoing event: private
// attributes dropped, maps copied so later caller mutation cannot leak in.
func (u *User) sanitized() *User {
	if u == nil {
		return nil
	}
	out := &User{
		UserID:  u.UserID,
		Email:   u.Email,
		Country: u.Country,
	}
	if len(u.CustomIDs) > 0 {
		out.CustomIDs = make(map[string]string, len(u.CustomIDs))
		for k, v := range u.CustomIDs {
			out.CustomIDs[k] = v
		}
	}
	if len(u.Custom) > 0 {
		out.Custom = make(map[string]interface{}, len(u.Custom))
		for k, v := range u.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

// Key returns a stable identity string for the user. Anonymous users share
// the empty key.
func (u *User) Key() string {
	if u == nil {
		return ""
	}
	return u.UserID
}
