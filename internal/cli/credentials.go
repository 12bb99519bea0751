package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Credentials is the connection half of the configuration. Fields left
// blank by flags and environment can be filled in interactively.
type Credentials struct {
	Host     string
	Username string
	Password string
}

// CompleteCredentials prompts on in for every blank field, reading the
// password with terminal echo disabled. When in is not a terminal the
// missing field is reported as an error instead: non-interactive runs
// must supply credentials up front.
func CompleteCredentials(creds *Credentials, in *os.File, out io.Writer) error {
	if creds.Host != "" && creds.Password != "" {
		return nil
	}

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		if creds.Host == "" {
			return errors.New("recorder host is required (REOLINK_HOST or --host)")
		}

		return errors.New("recorder password is required (REOLINK_PASSWORD or --password)")
	}

	readPassword := func() (string, error) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(out)

		return string(secret), err
	}

	return completeCredentials(creds, bufio.NewReader(in), out, readPassword)
}

func completeCredentials(creds *Credentials, in *bufio.Reader, out io.Writer, readPassword func() (string, error)) error {
	if creds.Host == "" {
		fmt.Fprint(out, "Recorder host/IP: ")

		host, err := readLine(in)
		if err != nil {
			return err
		}

		if host == "" {
			return errors.New("recorder host is required")
		}

		creds.Host = host
	}

	if creds.Username == "" {
		fmt.Fprint(out, "Username [admin]: ")

		username, err := readLine(in)
		if err != nil {
			return err
		}

		if username == "" {
			username = "admin"
		}

		creds.Username = username
	}

	if creds.Password == "" {
		fmt.Fprintf(out, "Password for %s: ", creds.Username)

		password, err := readPassword()
		if err != nil {
			return err
		}

		if password == "" {
			return errors.New("recorder password is required")
		}

		creds.Password = password
	}

	return nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	return strings.TrimSpace(line), nil
}
