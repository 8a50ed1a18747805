package rpc

import (
	"encoding/json"
	"net/http"

	"notegate/go-daemon/internal/actor"
)

// commandVerbs maps RPC method names to queue verbs. Method names and
// verbs are deliberately identical.
var commandVerbs = map[string]actor.Verb{
	"mint":                 actor.VerbMint,
	"get-account-info":     actor.VerbGetAccountInfo,
	"get-consumable-notes": actor.VerbGetConsumableNotes,
	"consume-note":         actor.VerbConsumeNote,
	"transfer-property":    actor.VerbTransferProperty,
	"send-tokens":          actor.VerbSendTokens,
	"get-balance":          actor.VerbGetBalance,
	"create-escrow":        actor.VerbCreateEscrow,
	"fund-escrow":          actor.VerbFundEscrow,
	"release-escrow":       actor.VerbReleaseEscrow,
	"refund-escrow":        actor.VerbRefundEscrow,
	"get-escrow":           actor.VerbGetEscrow,
	"list-escrows":         actor.VerbListEscrows,
	"dispute-escrow":       actor.VerbDisputeEscrow,
}

// singleRefField names the Params field filled when a verb receives
// one positional string argument.
var singleRefField = map[actor.Verb]func(*actor.Params, string){
	actor.VerbMint:               func(p *actor.Params, v string) { p.Account = v },
	actor.VerbGetAccountInfo:     func(p *actor.Params, v string) { p.Account = v },
	actor.VerbGetConsumableNotes: func(p *actor.Params, v string) { p.Account = v },
	actor.VerbConsumeNote:        func(p *actor.Params, v string) { p.Account = v },
	actor.VerbGetBalance:         func(p *actor.Params, v string) { p.Account = v },
	actor.VerbFundEscrow:         func(p *actor.Params, v string) { p.Escrow = v },
	actor.VerbReleaseEscrow:      func(p *actor.Params, v string) { p.Escrow = v },
	actor.VerbRefundEscrow:       func(p *actor.Params, v string) { p.Escrow = v },
	actor.VerbGetEscrow:          func(p *actor.Params, v string) { p.Escrow = v },
	actor.VerbDisputeEscrow:      func(p *actor.Params, v string) { p.Escrow = v },
}

func (s *Server) dispatch(r *http.Request, method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil
	case "get-metrics":
		return s.service.MetricsSnapshot(), nil
	}

	verb, ok := commandVerbs[method]
	if !ok {
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	}
	params, err := decodeParams(verb, rawParams)
	if err != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	}

	value, err := s.service.Submit(r.Context(), verb, params)
	if err != nil {
		return commandResult{Success: false, Error: err.Error()}, nil
	}
	return commandResult{Success: true, Data: value}, nil
}

// decodeParams accepts either an object with named fields or, for
// single-reference verbs, a one-element positional array.
func decodeParams(verb actor.Verb, raw json.RawMessage) (actor.Params, error) {
	var p actor.Params
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err == nil {
		return p, nil
	}
	set, ok := singleRefField[verb]
	if !ok {
		return actor.Params{}, errInvalidParams
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 1 || arr[0] == "" {
		return actor.Params{}, errInvalidParams
	}
	set(&p, arr[0])
	return p, nil
}
