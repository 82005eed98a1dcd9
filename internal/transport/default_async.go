//go:build !blocking

package transport

import "net/http"

// Default builds the sender compiled into this build.
func Default(client *http.Client, maxInFlight int) Sender {
	return NewAsync(client, maxInFlight)
}
