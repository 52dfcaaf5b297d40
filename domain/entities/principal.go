package entities

// Principal is the authenticated caller handed to every engine call.
type Principal struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Valid reports whether the principal carries a user id.
func (p Principal) Valid() bool {
	return p.UserID != ""
}

// Name returns the display name, falling back to the user id.
func (p Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.UserID
}
