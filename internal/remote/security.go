package remote

// secret is a session-private copy of a credential secret.
type secret struct {
	username string
	password []byte
}

func newSecret(username string, password []byte) *secret {
	// Copy so wiping ours never touches the caller's slice.
	passwordCopy := make([]byte, len(password))
	copy(passwordCopy, password)
	return &secret{username: username, password: passwordCopy}
}

func (s *secret) Clear() {
	SecureWipe(s.password)
	s.password = nil
}

// SecureWipe overwrites data with zeros.
func SecureWipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
