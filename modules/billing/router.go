package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount in the billing module.
// Each service is optional and will only be mounted if provided.
type RouterOptions struct {
	Subscription Mountable
	Quota        Mountable
	Webhook      Mountable

	// Principal authenticates user-facing routes. Defaults to the gateway's
	// X-User-ID header.
	Principal PrincipalResolver
}

// Router creates the billing module router. Webhook routes stay outside the
// principal middleware: they are authenticated by signature or route secret,
// not by a user session.
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Webhook != nil {
		r.Mount("/webhook", opts.Webhook.Handle())
	}

	resolve := opts.Principal
	if resolve == nil {
		resolve = HeaderPrincipal("X-User-ID")
	}

	r.Group(func(user chi.Router) {
		user.Use(PrincipalMiddleware(resolve))
		if opts.Subscription != nil {
			user.Mount("/subscription", opts.Subscription.Handle())
		}
		if opts.Quota != nil {
			user.Mount("/quota", opts.Quota.Handle())
		}
	})

	return r
}
