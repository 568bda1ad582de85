package intake

// InteractionKind is one of the fixed set of panel interactions the platform
// adapter can emit. The mapping to engine operations is a closed table, not
// per-widget callbacks.
type InteractionKind string

const (
	InteractionOpenPanel    InteractionKind = "open_panel"
	InteractionSubmitForm   InteractionKind = "submit_form"
	InteractionClaim        InteractionKind = "claim"
	InteractionUnclaim      InteractionKind = "unclaim"
	InteractionCloseConfirm InteractionKind = "close_confirm"
	InteractionCloseCancel  InteractionKind = "close_cancel"
)

// Operation names the engine operation an interaction maps to.
type Operation string

const (
	OpNone             Operation = ""
	OpCreate           Operation = "create"
	OpClaim            Operation = "claim"
	OpUnclaim          Operation = "unclaim"
	OpClose            Operation = "close"
)

// dispatch is the fixed interaction table.
var dispatch = map[InteractionKind]Operation{
	InteractionOpenPanel:    OpNone, // renders the tier menu; no engine call
	InteractionSubmitForm:   OpCreate,
	InteractionClaim:        OpClaim,
	InteractionUnclaim:      OpUnclaim,
	InteractionCloseConfirm: OpClose,
	InteractionCloseCancel:  OpNone,
}

// Dispatch resolves an interaction to its engine operation. ok is false for
// interactions outside the closed set.
func Dispatch(k InteractionKind) (Operation, bool) {
	op, ok := dispatch[k]
	return op, ok
}
