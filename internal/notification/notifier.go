// Package notification delivers the "guide is ready" message once an
// item goes live. Delivery is best-effort: failures are logged and
// never feed back into the item's state.
package notification

import (
	"context"
	"fmt"

	companydomain "github.com/guidely/guidely/internal/company/domain"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewNotifier),
)

type NotifierParam struct {
	fx.In

	Log        *zap.Logger
	CompanySvc companydomain.Service
	Email      email.Provider
}

type Notifier struct {
	log        *zap.Logger
	companysvc companydomain.Service
	email      email.Provider
}

func NewNotifier(p NotifierParam) *Notifier {
	return &Notifier{
		log:        p.Log.Named("notification"),
		companysvc: p.CompanySvc,
		email:      p.Email,
	}
}

// ItemReady notifies the owning user, honoring their preference. The
// returned error is informational only; callers must not let it affect
// the item.
func (n *Notifier) ItemReady(ctx context.Context, item *itemdomain.Item) error {
	optIn, err := n.companysvc.ItemReadyOptIn(ctx, item.OwnerUserID)
	if err != nil {
		return fmt.Errorf("read notification preference: %w", err)
	}
	if !optIn {
		n.log.Debug("item-ready notification skipped by preference",
			zap.String("item_id", item.ID.String()),
		)
		return nil
	}

	owner, err := n.companysvc.Owner(ctx, item.CompanyID)
	if err != nil {
		return fmt.Errorf("resolve item owner: %w", err)
	}

	subject := fmt.Sprintf("%s is ready for your customers", item.Name)
	body := readyBody(item)
	if err := n.email.Send(ctx, []string{owner.Email}, subject, body); err != nil {
		return fmt.Errorf("send ready notification: %w", err)
	}

	n.log.Info("item-ready notification sent",
		zap.String("item_id", item.ID.String()),
		zap.String("code", item.Code),
	)
	return nil
}

func readyBody(item *itemdomain.Item) string {
	targetURL := ""
	if item.TargetURL != nil {
		targetURL = *item.TargetURL
	}
	qrRef := ""
	if item.QRImageRef != nil {
		qrRef = *item.QRImageRef
	}
	return fmt.Sprintf(
		`<p>The assembly guide for <strong>%s</strong> (code <code>%s</code>) is live.</p>
<p>Guide link: <a href="%s">%s</a></p>
<p>QR image: %s</p>`,
		item.Name, item.Code, targetURL, targetURL, qrRef,
	)
}
