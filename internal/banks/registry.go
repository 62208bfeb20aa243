// Package banks holds the fixed, ordered set of upstream banking backends.
// Banks differ only by data, so there is one Descriptor type and no per-bank
// code paths.
package banks

import (
	"fmt"
	"net/url"
	"strings"

	"lendgate/internal/platform/config"
)

// Code is the short identifier of a bank (BCO, DAVI, COLT).
type Code string

const (
	Bancolombia     Code = "BCO"
	Davivienda      Code = "DAVI"
	Coltefinanciera Code = "COLT"
)

func (c Code) String() string {
	return string(c)
}

const applicationsByUserPath = "/api/applications/user/"

// Descriptor is an immutable upstream description.
type Descriptor struct {
	Name       string
	Code       Code
	BaseURL    string
	AuthHeader string
}

// ApplicationsURL is the endpoint listing the applications of userID.
func (d Descriptor) ApplicationsURL(userID string) string {
	return strings.TrimRight(d.BaseURL, "/") + applicationsByUserPath + url.PathEscape(userID)
}

// Registry is the ordered, read-only set of banks. It is built once at
// startup and safe for concurrent reads.
type Registry struct {
	banks  []Descriptor
	byCode map[Code]int
}

// NewRegistry validates descriptors and keeps them in declaration order.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		banks:  make([]Descriptor, 0, len(descriptors)),
		byCode: make(map[Code]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.Code == "" {
			return nil, fmt.Errorf("bank %q has no code", d.Name)
		}
		if _, exists := r.byCode[d.Code]; exists {
			return nil, fmt.Errorf("bank %s already registered", d.Code)
		}
		if _, err := url.ParseRequestURI(d.BaseURL); err != nil {
			return nil, fmt.Errorf("bank %s has invalid base URL %q: %w", d.Code, d.BaseURL, err)
		}
		if d.AuthHeader == "" {
			d.AuthHeader = "Authorization"
		}
		r.byCode[d.Code] = len(r.banks)
		r.banks = append(r.banks, d)
	}
	return r, nil
}

// FromConfig builds the registry from the startup configuration.
func FromConfig(cfg []config.Bank) (*Registry, error) {
	descriptors := make([]Descriptor, 0, len(cfg))
	for _, b := range cfg {
		descriptors = append(descriptors, Descriptor{
			Name:       b.Name,
			Code:       Code(b.Code),
			BaseURL:    b.BaseURL,
			AuthHeader: b.AuthHeader,
		})
	}
	return NewRegistry(descriptors...)
}

// All returns the banks in declaration order. The slice is a copy.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.banks))
	copy(out, r.banks)
	return out
}

// Get looks a bank up by code.
func (r *Registry) Get(code Code) (Descriptor, bool) {
	i, ok := r.byCode[code]
	if !ok {
		return Descriptor{}, false
	}
	return r.banks[i], true
}

func (r *Registry) Len() int {
	return len(r.banks)
}
