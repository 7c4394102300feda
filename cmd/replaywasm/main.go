//go:build js && wasm

// Command replaywasm exposes battle replay generation and verification to
// the browser.
package main

import (
	"encoding/json"
	"errors"
	"syscall/js"

	"agent-arena/arena"
	"agent-arena/replay"
)

type initRequest struct {
	Spec replay.BattleSpec `json:"spec"`
}

type initResponse struct {
	OK    bool                   `json:"ok"`
	Tape  *replay.WireReplayTape `json:"tape,omitempty"`
	Error *replay.ReplayError    `json:"error,omitempty"`
}

type verifyRequest struct {
	Spec   replay.BattleSpec   `json:"spec"`
	Events []arena.RoundResult `json:"events"`
}

type verifyResponse struct {
	OK       bool                `json:"ok"`
	Verified bool                `json:"verified"`
	Error    *replay.ReplayError `json:"error,omitempty"`
}

func main() {
	js.Global().Set("__replayInit", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) < 1 {
			return mustJSON(initResponse{Error: requestError("invalid_request", "missing request payload")})
		}
		return mustJSON(handleInit(args[0].String()))
	}))
	js.Global().Set("__replayVerify", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) < 1 {
			return mustJSON(verifyResponse{Error: requestError("invalid_request", "missing request payload")})
		}
		return mustJSON(handleVerify(args[0].String()))
	}))

	select {}
}

func requestError(reason, msg string) *replay.ReplayError {
	return &replay.ReplayError{StepIndex: -1, Reason: reason, Message: msg}
}

func handleInit(raw string) initResponse {
	var req initRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return initResponse{Error: requestError("invalid_json", err.Error())}
	}

	tape, err := replay.GenerateReplayTape(req.Spec)
	if err != nil {
		var replayErr *replay.ReplayError
		if errors.As(err, &replayErr) {
			return initResponse{Error: replayErr}
		}
		return initResponse{Error: requestError("replay_generation_failed", err.Error())}
	}
	return initResponse{OK: true, Tape: replay.ToWireReplayTape(tape)}
}

// handleVerify re-simulates the battle spec and compares it against a recorded
// tape. A divergence is a successful call with Verified false.
func handleVerify(raw string) verifyResponse {
	var req verifyRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return verifyResponse{Error: requestError("invalid_json", err.Error())}
	}
	err := replay.Verify(req.Spec, req.Events)
	if err == nil {
		return verifyResponse{OK: true, Verified: true}
	}
	var replayErr *replay.ReplayError
	if errors.As(err, &replayErr) && replayErr.Reason != replay.ReasonInvalidAgent {
		return verifyResponse{OK: true, Error: replayErr}
	}
	if replayErr == nil {
		replayErr = requestError("verify_failed", err.Error())
	}
	return verifyResponse{Error: replayErr}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(initResponse{Error: requestError("marshal_failed", err.Error())})
	}
	return string(b)
}
