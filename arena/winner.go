package arena

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aarika/x402-arena/events"
)

// SelectWinner runs the select-winner action. When the response carries no
// download link the delivery-status endpoint is polled; an undelivered
// asset is not an error.
func (o *Orchestrator) SelectWinner(ctx context.Context, req SelectWinnerRequest) (*SelectWinnerResult, error) {
	if req.CompetitionID == "" || req.WinningAgentID == "" {
		return nil, fmt.Errorf("competition id and winning agent id are required")
	}

	resp, err := o.run(ctx, selectWinnerAction, req)
	if err != nil {
		return nil, err
	}

	result := &SelectWinnerResult{}
	if err := resp.Decode(&result.Response); err != nil {
		return nil, fmt.Errorf("failed to decode select-winner response: %w", err)
	}

	o.emit(events.SourceContract, "Winner Declared", events.Details{
		"competitionId": result.Response.CompetitionID,
		"winnerAgentId": result.Response.WinnerAgentID,
		"payoutTx":      result.Response.PayoutTx,
	}, events.TypeSuccess)

	if result.Response.DownloadURL != "" {
		result.DownloadURL = result.Response.DownloadURL
		result.Delivered = true
		o.metrics.ObserveDelivery("immediate")
		o.emit(events.SourceStorage, "Original Asset Delivered", events.Details{"downloadUrl": result.DownloadURL}, events.TypeSuccess)
		return result, nil
	}

	downloadURL, ok := o.PollDelivery(ctx, req.CompetitionID)
	if ctx.Err() != nil {
		return nil, ErrDismissed
	}
	result.DownloadURL = downloadURL
	result.Delivered = ok
	if ok {
		o.metrics.ObserveDelivery("polled")
		o.emit(events.SourceStorage, "Original Asset Delivered", events.Details{"downloadUrl": downloadURL}, events.TypeSuccess)
	} else {
		o.metrics.ObserveDelivery("pending")
		o.emit(events.SourceStorage, "Delivery Pending", events.Details{"competitionId": req.CompetitionID}, events.TypeWarning)
	}
	return result, nil
}

// PollDelivery queries delivery status up to DeliveryPollAttempts times,
// pausing DeliveryPollInterval between attempts. It returns as soon as the
// backend reports a ready download link. Request failures count against
// the budget and are otherwise ignored.
func (o *Orchestrator) PollDelivery(ctx context.Context, competitionID string) (string, bool) {
	query := url.Values{"competitionId": {competitionID}}

	for attempt := 1; attempt <= o.cfg.DeliveryPollAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, o.cfg.DeliveryPollInterval); err != nil {
				return "", false
			}
		}

		var status DeliveryStatus
		err := o.client.Get(context.WithoutCancel(ctx), EndpointDeliveryStatus, query, nil, &status)
		if ctx.Err() != nil {
			return "", false
		}
		switch {
		case err != nil:
			o.metrics.ObservePoll("error")
			log.Debugf("Delivery status attempt %d for %s failed: %v", attempt, competitionID, err)
		case status.Ready && status.DownloadURL != "":
			o.metrics.ObservePoll("ready")
			return status.DownloadURL, true
		default:
			o.metrics.ObservePoll("pending")
			log.Tracef("Delivery for %s not ready (attempt %d)", competitionID, attempt)
		}
	}
	return "", false
}
