package model

import "time"

// Provider names the publishing service a session belongs to.
type Provider string

const ProviderX Provider = "X"

// Session is a cached OAuth bearer credential for one (provider, category).
//
// Once written it is treated as immutable and reused indefinitely; there is
// no refresh. AccessToken is never serialized to JSON.
type Session struct {
	Provider    Provider  `json:"provider"`
	Category    Category  `json:"category"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}
