package dspclient

import "github.com/google/uuid"

// genID returns a unique client identifier
func genID() string {
	return uuid.NewString()
}
