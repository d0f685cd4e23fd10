// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/solochain/solochain/app/services/node/handlers/v1/private"
	"github.com/solochain/solochain/app/services/node/handlers/v1/public"
	"github.com/solochain/solochain/foundation/blockchain/state"
	"github.com/solochain/solochain/foundation/events"
	"github.com/solochain/solochain/foundation/nameservice"
	"github.com/solochain/solochain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/latest/height", pbl.LatestHeight)
	app.Handle(http.MethodGet, version, "/latest/hash", pbl.LatestHash)
	app.Handle(http.MethodGet, version, "/latest/block", pbl.LatestBlock)
	app.Handle(http.MethodGet, version, "/latest/stateroot", pbl.LatestStateRoot)
	app.Handle(http.MethodGet, version, "/block/hash/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/block/:height", pbl.BlockByHeight)
	app.Handle(http.MethodGet, version, "/blocks/:from/:to", pbl.BlocksByRange)
	app.Handle(http.MethodGet, version, "/mempool", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/program/:id", pbl.Program)
	app.Handle(http.MethodGet, version, "/node/address", pbl.NodeAddress)
	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodPost, version, "/program/deploy", pbl.Deploy)
	app.Handle(http.MethodPost, version, "/faucet/pour", pbl.Pour)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/records", prv.Records)
	app.Handle(http.MethodGet, version, "/node/mempool", prv.Mempool)
	app.Handle(http.MethodPost, version, "/node/mempool/refresh", prv.RefreshMempool)
	app.Handle(http.MethodPost, version, "/node/mempool/clear", prv.ClearMempool)
}
