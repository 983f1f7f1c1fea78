package glue

import (
	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/errs"
)

// Action is the disposition the reference node takes after AddMessage
// returns an error, keyed off the errs.Kind taxonomy of spec §7.
type Action int

const (
	// ActionNone means no error, or an error kind with no further action.
	ActionNone Action = iota
	// ActionMarkInvalid logs the offending message as invalid; Handle does
	// not store it or act against the sender.
	ActionMarkInvalid
	// ActionDropSilently logs at debug level and takes no further action.
	ActionDropSilently
	// ActionRetry marks a transient failure that may succeed if the message
	// is offered again; Handle only logs it and schedules no retry.
	ActionRetry
	// ActionTerminate must stop the validator process.
	ActionTerminate
)

func (a Action) String() string {
	switch a {
	case ActionMarkInvalid:
		return "mark-invalid"
	case ActionDropSilently:
		return "drop-silently"
	case ActionRetry:
		return "retry"
	case ActionTerminate:
		return "terminate"
	default:
		return "none"
	}
}

// Classify maps err to the action the node should take (spec §7). It
// returns ActionNone for a nil error.
func Classify(err error) Action {
	if err == nil {
		return ActionNone
	}
	e, ok := errs.As(err)
	if !ok {
		return ActionRetry
	}
	switch e.Kind {
	case errs.KindValidation:
		return ActionMarkInvalid
	case errs.KindDrop:
		return ActionDropSilently
	case errs.KindTransient:
		return ActionRetry
	case errs.KindFatal:
		return ActionTerminate
	default:
		return ActionNone
	}
}

// Handle logs err at a level appropriate to its Action and returns the
// Action taken, so callers running the executor's pipeline can decide
// whether to keep calling AddMessage for later messages in a batch.
func Handle(log hclog.Logger, h string, err error) Action {
	action := Classify(err)
	switch action {
	case ActionMarkInvalid:
		log.Warn("message rejected as invalid", "hash", h, "error", err)
	case ActionDropSilently:
		log.Debug("message dropped", "hash", h, "error", err)
	case ActionRetry:
		log.Info("message not admitted, transient failure", "hash", h, "error", err)
	case ActionTerminate:
		log.Error("fatal consensus error, terminating", "hash", h, "error", err)
	}
	return action
}
