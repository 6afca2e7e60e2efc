package model

// TokenGenerator produces opaque, fixed-length random tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// PasswordHasher derives and checks password digests.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(digest, password string) error
}
