package main

import (
	"bytes"
	"fmt"
	"os"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/term"

	"github.com/yarkm13/dropsync/internal/remote"
)

// maxSecretLen bounds a typed secret. Base64 private keys are long.
const maxSecretLen = 65536

// terminalPrompt returns a prompt reading secrets from the terminal, or nil
// when stdin is not one.
func terminalPrompt() func(label string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return askPassword
}

// askPassword reads a secret from the terminal without echoing it. It reads
// in raw mode with a large buffer so pasted keys are not cut at a line limit.
func askPassword(label string) ([]byte, error) {
	fmt.Fprintf(os.Stderr, "Password for %s: ", label)
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, errors.Errorf("set terminal to raw mode: %w", err)
	}
	defer term.Restore(fd, oldState) //nolint:errcheck

	var password []byte
	buffer := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buffer)
		if err != nil {
			remote.SecureWipe(password)
			return nil, errors.Errorf("read password: %w", err)
		}
		chunk := buffer[:n]
		if bytes.IndexByte(chunk, 3) >= 0 { // Ctrl-C
			remote.SecureWipe(password)
			return nil, errors.New("interrupted")
		}
		if i := bytes.IndexAny(chunk, "\r\n"); i >= 0 {
			password = append(password, chunk[:i]...)
			break
		}
		password = append(password, chunk...)
		if len(password) > maxSecretLen {
			remote.SecureWipe(password)
			return nil, errors.Errorf("password longer than %d bytes", maxSecretLen)
		}
	}
	remote.SecureWipe(buffer)
	return password, nil
}
