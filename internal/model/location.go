package model

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme is the URI scheme used for object locations and completion notices.
const Scheme = "s3://"

var errBadLocation = errors.New("invalid object location")

// Location identifies an object in the object store.
type Location struct {
	Container string
	Key       string
}

// ParseLocation parses "s3://container/key".
func ParseLocation(uri string) (Location, error) {
	if !strings.HasPrefix(uri, Scheme) {
		return Location{}, fmt.Errorf("%w: %q has no %s prefix", errBadLocation, uri, Scheme)
	}

	container, key, ok := strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if !ok || container == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q", errBadLocation, uri)
	}

	return Location{Container: container, Key: key}, nil
}

// IsNotice reports whether a message body looks like a completion notice.
func IsNotice(body string) bool {
	_, err := ParseLocation(body)
	return err == nil
}

func (l Location) String() string {
	return Scheme + l.Container + "/" + l.Key
}
