// Package model defines the domain types shared by the cchat stores.
package model

import "time"

// Profile is a named credential. The secret itself is stored separately
// under secret.<ID> and never lives on this struct.
type Profile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	KeySuffix  string    `json:"keySuffix"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// KeySuffix returns the last four characters of a secret for display.
func KeySuffix(secret string) string {
	r := []rune(secret)
	if len(r) <= 4 {
		return string(r)
	}
	return string(r[len(r)-4:])
}
