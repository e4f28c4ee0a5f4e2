// Package docpath builds the nested document paths used by the dashboard:
// Clients/{clientId}/Booths/{boothId}/{subcollection}/{entityId}.
package docpath

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Clients     = "Clients"
	Booths      = "Booths"
	Vouchers    = "vouchers"
	Backgrounds = "backgrounds"
	Users       = "users"
	Credentials = "credentials"
	Identities  = "identities"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidPath            = errors.New("invalid document path")
)

// Path is a slash separated sequence of collection and document ids.
// Odd lengths name a collection, even lengths name a document.
type Path struct {
	segments []string
}

// Resolve returns the client document, a booth, a booth subcollection or one
// entity in it, depending on how many of the optional ids are set.
func Resolve(clientID, boothID, subcollection, entityID string) (Path, error) {
	if clientID == "" {
		return Path{}, ErrAuthenticationRequired
	}
	switch {
	case boothID == "" && (subcollection != "" || entityID != ""):
		return Path{}, fmt.Errorf("%w: booth id required", ErrInvalidPath)
	case subcollection == "" && entityID != "":
		return Path{}, fmt.Errorf("%w: subcollection required", ErrInvalidPath)
	}
	parts := []string{Clients, clientID}
	if boothID != "" {
		parts = append(parts, Booths, boothID)
	}
	if subcollection != "" {
		parts = append(parts, subcollection)
	}
	if entityID != "" {
		parts = append(parts, entityID)
	}
	return New(parts...)
}

// BoothCollection is Clients/{clientId}/Booths.
func BoothCollection(clientID string) (Path, error) {
	if clientID == "" {
		return Path{}, ErrAuthenticationRequired
	}
	return New(Clients, clientID, Booths)
}

// New validates every segment and joins them.
func New(segments ...string) (Path, error) {
	if len(segments) == 0 {
		return Path{}, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	out := make([]string, len(segments))
	for i, segment := range segments {
		if segment == "" || strings.Contains(segment, "/") || segment == "." || segment == ".." {
			return Path{}, fmt.Errorf("%w: segment %d is %q", ErrInvalidPath, i, segment)
		}
		out[i] = segment
	}
	return Path{segments: out}, nil
}

// Doc is New for callers that expect a document path.
func Doc(segments ...string) (Path, error) {
	p, err := New(segments...)
	if err != nil {
		return Path{}, err
	}
	if !p.IsDocument() {
		return Path{}, fmt.Errorf("%w: %s is a collection", ErrInvalidPath, p)
	}
	return p, nil
}

// Collection is New for callers that expect a collection path.
func Collection(segments ...string) (Path, error) {
	p, err := New(segments...)
	if err != nil {
		return Path{}, err
	}
	if p.IsDocument() {
		return Path{}, fmt.Errorf("%w: %s is a document", ErrInvalidPath, p)
	}
	return p, nil
}

func Parse(raw string) (Path, error) {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return Path{}, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	return New(strings.Split(raw, "/")...)
}

func (p Path) String() string {
	return strings.Join(p.segments, "/")
}

func (p Path) IsZero() bool {
	return len(p.segments) == 0
}

func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

func (p Path) IsDocument() bool {
	return len(p.segments) > 0 && len(p.segments)%2 == 0
}

// ID is the last segment: the document id, or the collection id for collections.
func (p Path) ID() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// CollectionID is the id of the collection a document lives in.
func (p Path) CollectionID() string {
	if p.IsDocument() {
		return p.segments[len(p.segments)-2]
	}
	return p.ID()
}

// Parent returns the containing collection of a document or the owning
// document of a subcollection. The parent of a root collection is zero.
func (p Path) Parent() Path {
	if len(p.segments) <= 1 {
		return Path{}
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Child appends segments to p.
func (p Path) Child(segments ...string) (Path, error) {
	return New(append(p.Segments(), segments...)...)
}

// Owner returns the client id for any path under Clients/{clientId}.
func (p Path) Owner() (string, bool) {
	if len(p.segments) < 2 || p.segments[0] != Clients {
		return "", false
	}
	return p.segments[1], true
}

// Booth returns the booth id for any path under Clients/{c}/Booths/{boothId}.
func (p Path) Booth() (string, bool) {
	if len(p.segments) < 4 || p.segments[0] != Clients || p.segments[2] != Booths {
		return "", false
	}
	return p.segments[3], true
}

// HasPrefix reports whether p equals prefix or lies below it.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segments) == 0 || len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, segment := range prefix.segments {
		if p.segments[i] != segment {
			return false
		}
	}
	return true
}
