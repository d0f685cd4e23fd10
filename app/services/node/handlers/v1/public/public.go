// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	v1 "github.com/solochain/solochain/business/web/v1"
	"github.com/solochain/solochain/foundation/blockchain/consensus"
	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/state"
	"github.com/solochain/solochain/foundation/events"
	"github.com/solochain/solochain/foundation/nameservice"
	"github.com/solochain/solochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction stages a new signed transaction into the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "tx", signedTx)

	txID, err := h.State.SubmitTransaction(signedTx)
	if err != nil {
		if errors.Is(err, consensus.ErrDuplicate) {
			return v1.NewRequestError(err, http.StatusConflict)
		}
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"tx_id"`
	}{
		Status: "transaction added to mempool",
		TxID:   txID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Deploy builds and stages a program deployment funded by the operator.
func (h Handlers) Deploy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app struct {
		ProgramID string `json:"program_id" validate:"required"`
		Source    string `json:"source" validate:"required"`
	}
	if err := web.Decode(r, &app); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	program := database.Program{
		ProgramID: app.ProgramID,
		Source:    app.Source,
	}

	txID, err := h.State.SubmitDeploy(program)
	if err != nil {
		if errors.Is(err, consensus.ErrDuplicate) {
			return v1.NewRequestError(err, http.StatusConflict)
		}
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"tx_id"`
	}{
		Status: "deployment added to mempool",
		TxID:   txID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Pour builds and stages a transfer from the operator to the specified
// account.
func (h Handlers) Pour(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app struct {
		Account string `json:"account" validate:"required"`
		Amount  uint64 `json:"amount" validate:"required,gt=0"`
	}
	if err := web.Decode(r, &app); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	toID, err := database.ToAccountID(app.Account)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	txID, err := h.State.SubmitPour(toID, app.Amount)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"tx_id"`
	}{
		Status: "pour added to mempool",
		TxID:   txID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// LatestHeight returns the height of the latest block.
func (h Handlers) LatestHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Height uint64 `json:"height"`
	}{
		Height: h.State.LatestBlock().Header.Height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// LatestHash returns the hash of the latest block.
func (h Handlers) LatestHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Hash string `json:"hash"`
	}{
		Hash: h.State.LatestBlock().Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// LatestBlock returns the latest block.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.toBlock(h.State.LatestBlock()), http.StatusOK)
}

// LatestStateRoot returns the state root covering the whole chain.
func (h Handlers) LatestStateRoot(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		StateRoot string `json:"state_root"`
	}{
		StateRoot: h.State.StateRoot(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByHeight returns the block at the specified height.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid height: %w", err), http.StatusBadRequest)
	}

	blk, err := h.State.GetBlock(height)
	if err != nil {
		return v1.NewRequestError(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, h.toBlock(blk), http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, err := h.State.GetBlockByHash(web.Param(r, "hash"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, h.toBlock(blk), http.StatusOK)
}

// BlocksByRange returns the blocks in the specified height range.
func (h Handlers) BlocksByRange(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := strconv.ParseUint(web.Param(r, "from"), 10, 64)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid from height: %w", err), http.StatusBadRequest)
	}

	to, err := strconv.ParseUint(web.Param(r, "to"), 10, 64)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid to height: %w", err), http.StatusBadRequest)
	}

	dbBlocks, err := h.State.GetBlocks(from, to)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = h.toBlock(blk)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.Mempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Program returns the deployed program with the specified id.
func (h Handlers) Program(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	program, err := h.State.GetProgram(web.Param(r, "id"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, program, http.StatusOK)
}

// NodeAddress returns the account that produces blocks on this node.
func (h Handlers) NodeAddress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	operatorID := h.State.OperatorID()

	resp := struct {
		Account database.AccountID `json:"account"`
		Name    string             `json:"name,omitempty"`
	}{
		Account: operatorID,
		Name:    h.NS.Lookup(operatorID),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// toTx converts a database transaction into its response form.
func (h Handlers) toTx(tran database.BlockTx) tx {
	producerID, _ := tran.FromAccount()

	return tx{
		ID:        tran.Tx.ID(),
		Type:      tran.Type,
		ProgramID: tran.ProgramID,
		Function:  tran.Function,
		Fee:       tran.Fee,
		TimeStamp: tran.TimeStamp,
		TPK:       tran.TPK,
		TCM:       tran.TCM,
		Inputs:    tran.Inputs,
		Outputs:   tran.Outputs,
		Producer:  producerID,
		Name:      h.NS.Lookup(producerID),
		Sig:       tran.SignatureString(),
	}
}

// toBlock converts a database block into its response form.
func (h Handlers) toBlock(blk database.Block) block {
	trans := make([]tx, len(blk.Trans.Values()))
	for i, tran := range blk.Trans.Values() {
		trans[i] = h.toTx(tran)
	}

	return block{
		Hash:           blk.Hash(),
		Height:         blk.Header.Height,
		Round:          blk.Header.Round,
		TimeStamp:      blk.Header.TimeStamp,
		PrevBlockHash:  blk.Header.PrevBlockHash,
		StateRoot:      blk.Header.StateRoot,
		TransRoot:      blk.Header.TransRoot,
		Producer:       blk.Header.ProducerID,
		ProducerName:   h.NS.Lookup(blk.Header.ProducerID),
		CoinbaseTarget: blk.Header.CoinbaseTarget,
		ProofTarget:    blk.Header.ProofTarget,
		Trans:          trans,
	}
}
