// Package private maintains the group of handlers for node to operator access.
package private

import (
	"context"
	"net/http"

	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/state"
	"github.com/solochain/solochain/foundation/nameservice"
	"github.com/solochain/solochain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of private node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.LatestBlock()

	resp := struct {
		Height    uint64             `json:"height"`
		Hash      string             `json:"hash"`
		Round     uint64             `json:"round"`
		StateRoot string             `json:"state_root"`
		Mempool   int                `json:"mempool"`
		Operator  database.AccountID `json:"operator"`
	}{
		Height:    latestBlock.Header.Height,
		Hash:      latestBlock.Hash(),
		Round:     latestBlock.Header.Round,
		StateRoot: h.State.StateRoot(),
		Mempool:   h.State.MempoolLength(),
		Operator:  h.State.OperatorID(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Records returns the unspent records the operator can still commit.
func (h Handlers) Records(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	records := h.State.UnspentRecords()

	resp := struct {
		Count   int               `json:"count"`
		Records []database.Record `json:"records"`
	}{
		Count:   len(records),
		Records: records,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Mempool(), http.StatusOK)
}

// RefreshMempool drops every staged transaction that now conflicts with
// the confirmed chain.
func (h Handlers) RefreshMempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	removed := h.State.RefreshMempool()

	resp := struct {
		Removed int `json:"removed"`
	}{
		Removed: removed,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ClearMempool drops every staged transaction.
func (h Handlers) ClearMempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.ClearMempool()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mempool cleared",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
