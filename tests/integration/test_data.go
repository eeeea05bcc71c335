package integration

import (
	"fmt"
	"time"
)

// TestAccountIdentity generates unique account credentials using a timestamp
func TestAccountIdentity(suffix string) (username, email string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("test-%d-%s", ts, suffix)
	email = fmt.Sprintf("%s@example.com", username)
	return
}
