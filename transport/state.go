package transport

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/opd-ai/voicestream/metrics"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a media session.
type State string

const (
	StateConnecting State = "connecting"
	StateReady      State = "ready"
	StateStopped    State = "stopped"
)

const (
	eventReady = "ready"
	eventStop  = "stop"
)

// newStateMachine builds the Connecting -> Ready -> Stopped machine.
// Stopped is terminal and reachable from both other states.
func newStateMachine(log *logrus.Entry, m *metrics.Metrics) *fsm.FSM {
	return fsm.NewFSM(
		string(StateConnecting),
		fsm.Events{
			{Name: eventReady, Src: []string{string(StateConnecting)}, Dst: string(StateReady)},
			{Name: eventStop, Src: []string{string(StateConnecting), string(StateReady)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.StateChanged(e.Dst)
				log.WithFields(logrus.Fields{
					"function": "stateMachine",
					"from":     e.Src,
					"to":       e.Dst,
				}).Info("Media session state changed")
			},
		},
	)
}
