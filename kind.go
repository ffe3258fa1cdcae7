package work

import (
	"errors"
	"fmt"
	"strings"
)

// Returned by ParseKind for names it does not recognize.
var ErrUnknownKind = errors.New("Unknown executor kind")

// Selects which executor handle a bootstrap provisions and how many worker
// threads drive it.
type Kind int

const (
	// An owned *LocalQueue driven inline on the calling goroutine.
	SingleThread Kind = iota
	// An owned *Queue driven by one worker thread per CPU.
	MultiThread
	// A reference-counted *SharedQueue driven by one worker thread per CPU.
	SharedMultiThread
	// A reference-counted *SharedLocalQueue driven inline.
	SharedSingleThread
)

var kindNames = map[Kind]string{
	SingleThread:       "single-thread",
	MultiThread:        "multi-thread",
	SharedMultiThread:  "shared-multi-thread",
	SharedSingleThread: "shared-single-thread",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Returns true if this kind spawns worker threads.
func (k Kind) Threaded() bool {
	return k == MultiThread || k == SharedMultiThread
}

// Parses a kind from its String form. "local" and "threaded" are accepted as
// aliases for the owned kinds.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "local":
		return SingleThread, nil
	case "threaded":
		return MultiThread, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
