package capture

import (
	"context"
	"log"

	"github.com/looplab/fsm"
)

const (
	StateIdle              = "idle"
	StateAwaitingCandidate = "awaiting_candidate"
	StateBattleGate        = "battle_gate"
	StateDirectCapture     = "direct_capture"
	StateReconciling       = "reconciling"
)

const (
	evTrigger    = "trigger"
	evGateBattle = "gate_battle"
	evGateDirect = "gate_direct"
	evReconcile  = "reconcile"
	evFinish     = "finish"
	evAbort      = "abort"
	evCancel     = "cancel"
)

// run is the state machine of a single capture attempt.
type run struct {
	captureID string
	machine   *fsm.FSM
}

func newRun(captureID string) *run {
	r := &run{captureID: captureID}
	r.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evTrigger, Src: []string{StateIdle}, Dst: StateAwaitingCandidate},
			{Name: evGateBattle, Src: []string{StateAwaitingCandidate}, Dst: StateBattleGate},
			{Name: evGateDirect, Src: []string{StateAwaitingCandidate}, Dst: StateDirectCapture},
			{Name: evReconcile, Src: []string{StateBattleGate, StateDirectCapture}, Dst: StateReconciling},
			{Name: evFinish, Src: []string{StateReconciling}, Dst: StateIdle},
			{Name: evAbort, Src: []string{StateAwaitingCandidate, StateBattleGate, StateDirectCapture}, Dst: StateIdle},
			{Name: evCancel, Src: []string{StateBattleGate}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Printf("capture run: capture_id=%s event=%s from=%s to=%s", captureID, e.Event, e.Src, e.Dst)
			},
		},
	)
	return r
}

// step fires an event. Transitions are driven by the controller alone, so a
// rejected event is logged rather than returned.
func (r *run) step(ctx context.Context, event string) {
	if err := r.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("capture run transition rejected: capture_id=%s event=%s state=%s err=%v", r.captureID, event, r.machine.Current(), err)
	}
}

func (r *run) state() string {
	return r.machine.Current()
}
