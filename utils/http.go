// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the outbound calls to the sibling services.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
