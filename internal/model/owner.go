package model

import "errors"

var ErrInvalidOwner = errors.New("cart owner must be exactly one of user id or session key")

// CartOwner identifies whose cart is addressed. Exactly one field is set.
type CartOwner struct {
	UserID     string
	SessionKey string
}

func UserOwner(userID string) CartOwner { return CartOwner{UserID: userID} }

func SessionOwner(key string) CartOwner { return CartOwner{SessionKey: key} }

func (o CartOwner) Validate() error {
	if (o.UserID == "") == (o.SessionKey == "") {
		return ErrInvalidOwner
	}
	return nil
}

func (o CartOwner) String() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "session:" + o.SessionKey
}
