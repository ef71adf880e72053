package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/domain/order"
)

const reconcileReason = "reconcile: partner has no order for this id"

// reconcile resolves PROCESSING orders whose forward never recorded an
// outcome. Orders the partner knows get their partner id; orders it never
// received count as a failed attempt. Partner errors leave the order for
// the next run.
func (e *Engine) reconcile(ctx context.Context, partner integration.PODPartner) (int, error) {
	cutoff := e.now().Add(-e.cfg.ReconcileGrace)
	stuck, err := e.orders.FindStuckProcessing(ctx, cutoff, e.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, o := range stuck {
		if ctx.Err() != nil {
			break
		}
		log := e.logger.With(zap.String("order_id", o.ID))

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.PartnerTimeout)
		report, err := partner.FindByExternalID(callCtx, o.ID)
		cancel()

		t := order.Transition{
			ID:                o.ID,
			From:              order.StatusProcessing,
			At:                e.now(),
			ExpectClaimToken:  o.ClaimToken,
			RequireNoPartner:  true,
			IncrementAttempts: true,
		}
		switch {
		case err == nil:
			t.To = order.StatusProcessing
			t.PartnerOrderID = report.PartnerOrderID
			t.PartnerProvider = string(partner.Provider())
		case errors.Is(err, integration.ErrPartnerOrderNotFound):
			reason := reconcileReason
			t.To = o.FailureStatus(e.cfg.MaxAttempts)
			t.FailureReason = &reason
		default:
			log.Warn("Reconcile lookup failed, retrying next run", zap.Error(err))
			continue
		}

		ok, err := e.orders.Apply(ctx, t)
		if err != nil {
			log.Error("Reconcile write failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		resolved++

		o.Status = t.To
		o.FulfillmentAttempts++
		o.UpdatedAt = t.At
		if t.PartnerOrderID != "" {
			o.PartnerOrderID, o.PartnerProvider = t.PartnerOrderID, t.PartnerProvider
			log.Info("Reconciled order with partner", zap.String("partner_order_id", o.PartnerOrderID))
		} else {
			o.LastFulfillmentError = reconcileReason
			log.Warn("Reconciled order as failed", zap.String("status", string(o.Status)))
			e.notify(ctx, o)
		}
	}
	return resolved, nil
}

// pollTracking asks partners about forwarded orders and applies shipment
// changes. Failures are logged per order.
func (e *Engine) pollTracking(ctx context.Context) int {
	awaiting, err := e.orders.FindAwaitingShipment(ctx, e.cfg.BatchSize)
	if err != nil {
		e.logger.Warn("Tracking poll skipped", zap.Error(err))
		return 0
	}

	shipped := 0
	for _, o := range awaiting {
		if ctx.Err() != nil {
			break
		}
		log := e.logger.With(zap.String("order_id", o.ID), zap.String("provider", o.PartnerProvider))
		partner, err := e.partners.Get(integration.ProviderCode(o.PartnerProvider))
		if err != nil {
			log.Warn("No adapter for order provider", zap.Error(err))
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.PartnerTimeout)
		report, err := partner.CheckStatus(callCtx, o.PartnerOrderID)
		cancel()
		if err != nil {
			log.Warn("Partner status check failed", zap.Error(err))
			continue
		}

		update, ok := mapper.TrackingFromPartnerStatus(*report)
		if !ok {
			continue
		}
		if _, err := e.apply(ctx, o, update); err != nil {
			log.Warn("Applying partner status failed", zap.Error(err))
			continue
		}
		if update.Event != mapper.TrackingCancelled {
			shipped++
		}
	}
	return shipped
}

// ApplyTrackingUpdate applies a pushed tracking update to an order and
// returns the order as stored afterwards.
func (e *Engine) ApplyTrackingUpdate(ctx context.Context, id string, update mapper.TrackingUpdate) (*order.Order, error) {
	o, err := e.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, *o, update)
}

func (e *Engine) apply(ctx context.Context, o order.Order, update mapper.TrackingUpdate) (*order.Order, error) {
	var steps []order.Transition
	base := order.Transition{ID: o.ID, At: e.now()}
	tracking := update.Tracking

	switch update.Event {
	case mapper.TrackingShipped:
		if o.Status != order.StatusProcessing && o.Status != order.StatusShipped {
			return nil, invalidTransition(o.Status, order.StatusShipped)
		}
		t := base
		t.From, t.To, t.Tracking = o.Status, order.StatusShipped, &tracking
		steps = append(steps, t)

	case mapper.TrackingDelivered:
		switch o.Status {
		case order.StatusProcessing:
			ship := base
			ship.From, ship.To = order.StatusProcessing, order.StatusShipped
			if !tracking.IsZero() {
				ship.Tracking = &tracking
			}
			steps = append(steps, ship)
		case order.StatusShipped:
		case order.StatusDelivered:
			return &o, nil
		default:
			return nil, invalidTransition(o.Status, order.StatusDelivered)
		}
		t := base
		t.From, t.To = order.StatusShipped, order.StatusDelivered
		if !tracking.IsZero() {
			t.Tracking = &tracking
		}
		steps = append(steps, t)

	case mapper.TrackingCancelled:
		if o.Status != order.StatusProcessing {
			return nil, invalidTransition(o.Status, order.StatusFulfillmentError)
		}
		reason := update.Reason
		if reason == "" {
			reason = "partner cancelled order"
		}
		t := base
		t.From, t.To = order.StatusProcessing, o.FailureStatus(e.cfg.MaxAttempts)
		t.IncrementAttempts = true
		t.FailureReason = &reason
		steps = append(steps, t)

	default:
		return nil, fmt.Errorf("%w: unknown tracking event %q", mapper.ErrInvalidPayload, update.Event)
	}

	ok, err := e.orders.ApplyAll(ctx, steps...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	updated, err := e.orders.FindByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if updated.Status != o.Status {
		e.logger.Info("Order status updated",
			zap.String("order_id", o.ID),
			zap.String("from_status", string(o.Status)),
			zap.String("to_status", string(updated.Status)),
			zap.String("tracking_number", updated.Tracking.Number),
		)
	}
	// every status the order entered gets its own event, in order
	for _, t := range steps {
		if t.To == t.From {
			continue
		}
		snapshot := *updated
		snapshot.Status = t.To
		e.notify(ctx, snapshot)
	}
	return updated, nil
}

// Resume moves an ON_HOLD order back to PAID with a fresh attempt budget
func (e *Engine) Resume(ctx context.Context, id string) (*order.Order, error) {
	o, err := e.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusOnHold {
		return nil, fmt.Errorf("%w: %s", ErrNotOnHold, o.Status)
	}
	cleared := ""
	ok, err := e.orders.Apply(ctx, order.Transition{
		ID:            id,
		From:          order.StatusOnHold,
		To:            order.StatusPaid,
		At:            e.now(),
		ResetAttempts: true,
		ClearPartner:  true,
		FailureReason: &cleared,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	updated, err := e.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Order resumed", zap.String("order_id", id))
	e.notify(ctx, *updated)
	return updated, nil
}

func invalidTransition(from, to order.Status) error {
	return fmt.Errorf("%w: %s -> %s", order.ErrInvalidTransition, from, to)
}
