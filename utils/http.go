package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the outbound collaborators (card catalog, auth).
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
