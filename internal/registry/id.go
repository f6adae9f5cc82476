package registry

import "github.com/google/uuid"

// GenerateID returns a new UUID v4 used for site and device ids.
func GenerateID() string {
	return uuid.New().String()
}
