package mid

import (
	"context"
	"expvar"
	"net/http"
	"runtime"

	"github.com/solochain/solochain/foundation/web"
)

// counters represents the set of metrics we gather. These fields are safe
// to be accessed concurrently thanks to expvar. No extra abstraction is
// required.
type counters struct {
	goroutines *expvar.Int
	requests   *expvar.Int
	errors     *expvar.Int
	panics     *expvar.Int
}

// metrics holds the single instance of the counters for the service.
var metrics = counters{
	goroutines: expvar.NewInt("goroutines"),
	requests:   expvar.NewInt("requests"),
	errors:     expvar.NewInt("errors"),
	panics:     expvar.NewInt("panics"),
}

// AddPanics increments the panics metric by 1.
func (c *counters) AddPanics(ctx context.Context) {
	c.panics.Add(1)
}

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request counter.
			metrics.requests.Add(1)

			// Update the count for the number of active goroutines every
			// 100 requests.
			if metrics.requests.Value()%100 == 0 {
				metrics.goroutines.Set(int64(runtime.NumGoroutine()))
			}

			// Increment if there is an error flowing through the request.
			if err != nil {
				metrics.errors.Add(1)
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
