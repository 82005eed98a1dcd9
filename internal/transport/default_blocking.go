//go:build blocking

package transport

import "net/http"

// Default builds the sender compiled into this build. maxInFlight has no effect: calls are sequential.
func Default(client *http.Client, _ int) Sender {
	return NewBlocking(client)
}
