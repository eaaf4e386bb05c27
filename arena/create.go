package arena

import (
	"context"
	"fmt"

	"github.com/aarika/x402-arena/events"
)

// CreatedFunc is called with the new competition's ID once the settle
// delay has elapsed.
type CreatedFunc func(competitionID string)

// CreateCompetition runs the create action. An empty WalletAddress is
// filled from the connected wallet. After success the orchestrator waits
// SettleDelay and then calls onCreated, unless ctx ended in the meantime.
func (o *Orchestrator) CreateCompetition(ctx context.Context, req CreateCompetitionRequest, onCreated CreatedFunc) (*CreateCompetitionResponse, error) {
	if req.WalletAddress == "" && o.wallet != nil {
		req.WalletAddress = o.wallet.Address()
	}

	resp, err := o.run(ctx, createCompetitionAction, req)
	if err != nil {
		return nil, err
	}

	var out CreateCompetitionResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode create-competition response: %w", err)
	}

	o.emit(events.SourceBackend, "Competition Created", events.Details{
		"competitionId": out.CompetitionID,
		"txHash":        out.TxHash,
	}, events.TypeSuccess)
	o.emit(events.SourceContract, "Event Emitted: CompetitionCreated", events.Details{
		"competitionId": out.CompetitionID,
	}, events.TypeInfo)
	o.emit(events.SourceFrontend, "Competition is now LIVE", nil, events.TypeSuccess)

	if err := sleep(ctx, o.cfg.SettleDelay); err != nil {
		log.Debugf("Settle delay interrupted for %s: %v", out.CompetitionID, err)
		return &out, nil
	}
	if onCreated != nil {
		onCreated(out.CompetitionID)
	}
	return &out, nil
}
