package engine

import (
	"fmt"
	"strings"
)

// Canonical messages for engine connection failures. Raw engine errors are
// mapped onto one of these so callers can match on stable text.
const (
	MsgCertificateInvalid = "certificate path invalid"
	MsgConnectionRefused  = "connection refused"
	MsgUnreachable        = "unable to connect to host"
	MsgInternal           = "internal error"
)

// BuildError reports a failed image build.
type BuildError struct {
	Image string
	Msg   string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("unable to build docker image %s: %s", e.Image, e.Msg)
}

func (e *BuildError) Unwrap() error { return e.Err }

// PushError reports a failed image push.
type PushError struct {
	Image string
	Msg   string
	Err   error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("unable to push docker image %s: %s", e.Image, e.Msg)
}

func (e *PushError) Unwrap() error { return e.Err }

var (
	certificatePatterns = []string{
		"certificate", "x509", "tls:", "ca.pem", "cert.pem", "key.pem", "pkix path",
	}
	refusedPatterns = []string{
		"connection refused",
	}
	unreachablePatterns = []string{
		"cannot connect to the docker daemon",
		"unable to connect",
		"no such host",
		"no route to host",
		"network is unreachable",
		"i/o timeout",
		"connection reset",
		"no such file or directory",
		"unable to parse docker host",
	}
)

// Canonicalize maps an engine connection error to one of the canonical
// messages. Engine detail is dropped.
func Canonicalize(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, certificatePatterns):
		return MsgCertificateInvalid
	case containsAny(msg, refusedPatterns):
		return MsgConnectionRefused
	case containsAny(msg, unreachablePatterns):
		return MsgUnreachable
	default:
		return MsgInternal
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
