package models

type User struct {
	ID      string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email"`
	Address string `json:"address,omitempty"`
}

// AuthState est fourni par la session externe ; le panier ne fait que le lire.
type AuthState struct {
	Token string `json:"-"`
	User  *User  `json:"user,omitempty"`
}

func (a AuthState) IsGuest() bool {
	return a.Token == ""
}

func (a AuthState) Address() string {
	if a.User == nil {
		return ""
	}
	return a.User.Address
}
