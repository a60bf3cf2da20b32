package client

import (
	"context"
	"fmt"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/units"
)

// RemoteEngine drives a node's run engine over HTTP with the same method
// set as run.Engine, so an autoplay strategy can play against a live node.
type RemoteEngine struct {
	c         *Client
	constants run.Constants
	units     units.Converter
}

// NewRemoteEngine fetches the node's constants once.
func NewRemoteEngine(ctx context.Context, c *Client) (*RemoteEngine, error) {
	cr, err := c.Constants(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := units.New(cr.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("dungeon: node token decimals: %w", err)
	}
	return &RemoteEngine{c: c, constants: cr.Run, units: conv}, nil
}

func (r *RemoteEngine) Constants() run.Constants { return r.constants }

func (r *RemoteEngine) EnterDungeon(ctx context.Context, caller chain.Address, tokenID uint64, payment uint64) (run.Session, error) {
	resp, err := r.c.Enter(ctx, caller, tokenID, r.units.Format(payment))
	return resp.Session, err
}

func (r *RemoteEngine) ChooseCard(ctx context.Context, caller chain.Address, tokenID uint64, cardIndex uint8) (run.Draw, error) {
	resp, err := r.c.Card(ctx, caller, tokenID, cardIndex)
	return resp.Draw, err
}

func (r *RemoteEngine) ExitDungeon(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error) {
	resp, err := r.c.Exit(ctx, caller, tokenID)
	return resp.Session, err
}

func (r *RemoteEngine) PauseRun(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error) {
	resp, err := r.c.Pause(ctx, caller, tokenID)
	return resp.Session, err
}

func (r *RemoteEngine) ClaimAfterDeath(ctx context.Context, caller chain.Address, tokenID uint64) (run.Session, error) {
	resp, err := r.c.Claim(ctx, caller, tokenID)
	return resp.Session, err
}
