package webhooks

import (
	"context"
	"net/http"

	"github.com/cinerent/cinerent-backend/api/responses"
	"github.com/cinerent/cinerent-backend/api/validators"
	midtranswebhook "github.com/cinerent/cinerent-backend/internal/webhooks/midtrans"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/midtrans"
)

type MidtransWebhookService interface {
	Verify(n midtrans.Notification) error
	Handle(ctx context.Context, n midtrans.Notification) (midtranswebhook.Outcome, error)
}

type MidtransReplayGuard interface {
	CheckAndMark(ctx context.Context, n midtrans.Notification) (bool, error)
	Forget(ctx context.Context, n midtrans.Notification) error
}

// MidtransWebhook applies gateway payment notifications. The signature is
// checked before the replay marker is claimed, so only signed notifications can
// mark one. Replays of an accepted notification are acknowledged without
// touching state.
func MidtransWebhook(svc MidtransWebhookService, guard MidtransReplayGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "replay guard unavailable"))
			return
		}

		var n midtrans.Notification
		if err := validators.DecodeLenientJSONBody(r, &n); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderID(ctx, n.OrderID)
		}
		if err := svc.Verify(n); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		seen, err := guard.CheckAndMark(ctx, n)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check replay"))
			return
		}
		if seen {
			responses.WriteSuccess(w, map[string]string{"outcome": "duplicate"})
			return
		}

		outcome, err := svc.Handle(ctx, n)
		if err != nil {
			if forgetErr := guard.Forget(ctx, n); forgetErr != nil && logg != nil {
				logg.Error(ctx, "clear webhook replay marker", forgetErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "midtrans notification processed")
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
