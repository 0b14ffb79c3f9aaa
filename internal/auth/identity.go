package auth

// Identity is the closed result of the authentication gate: either Anonymous
// or Authenticated. The sealed method keeps the set of variants closed to
// this package.
type Identity interface {
	sealed()
}

// Anonymous is the identity attached to requests on public paths that carry
// no usable credential.
type Anonymous struct{}

func (Anonymous) sealed() {}

// Authenticated carries the verified claims of a bearer credential. Only this
// variant has a subject; code that needs one must type-assert and handle the
// anonymous case.
type Authenticated struct {
	UserID string
	Email  string
	Admin  bool
	OrgID  string
	Kind   TokenKind
}

func (Authenticated) sealed() {}
