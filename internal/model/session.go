package model

import "time"

// DefaultSessionTTL is the lifetime of a freshly minted session token.
const DefaultSessionTTL = 24 * time.Hour

// Field names used in validation and conflict errors.
const (
	FieldEmail        = "email"
	FieldPassword     = "password"
	FieldFirst        = "first"
	FieldLast         = "last"
	FieldSessionToken = "session_token"
	FieldUpdateToken  = "update_token"
	FieldImage        = "image_data"
)
