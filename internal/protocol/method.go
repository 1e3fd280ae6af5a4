package protocol

// Method names form a closed set; the dispatcher rejects anything else with
// MethodNotFound. Names and grouping mirror the original Rust method
// registry exactly, including crux:events/subscribe which spec prose omits
// from its table but whose constant is part of the same closed set.
const (
	MethodHandshake = "crux:handshake"

	MethodPaneSplit        = "crux:pane/split"
	MethodPaneSendText     = "crux:pane/send-text"
	MethodPaneGetText      = "crux:pane/get-text"
	MethodPaneGetSnapshot  = "crux:pane/get-snapshot"
	MethodPaneGetSelection = "crux:pane/get-selection"
	MethodPaneList         = "crux:pane/list"
	MethodPaneResize       = "crux:pane/resize"
	MethodPaneActivate     = "crux:pane/activate"
	MethodPaneClose        = "crux:pane/close"

	MethodWindowCreate = "crux:window/create"
	MethodWindowList   = "crux:window/list"

	MethodSessionSave = "crux:session/save"
	MethodSessionLoad = "crux:session/load"

	MethodClipboardRead  = "crux:clipboard/read"
	MethodClipboardWrite = "crux:clipboard/write"

	MethodImeGetState        = "crux:ime/get-state"
	MethodImeSetInputSource  = "crux:ime/set-input-source"

	MethodEventsSubscribe = "crux:events/subscribe"
	MethodEventsPoll      = "crux:events/poll"
)

// KnownMethods enumerates the full closed set of method names (20 methods),
// used by the dispatcher to answer MethodNotFound quickly.
var KnownMethods = map[string]bool{
	MethodHandshake:         true,
	MethodPaneSplit:         true,
	MethodPaneSendText:      true,
	MethodPaneGetText:       true,
	MethodPaneGetSnapshot:   true,
	MethodPaneGetSelection:  true,
	MethodPaneList:          true,
	MethodPaneResize:        true,
	MethodPaneActivate:      true,
	MethodPaneClose:         true,
	MethodWindowCreate:      true,
	MethodWindowList:        true,
	MethodSessionSave:       true,
	MethodSessionLoad:       true,
	MethodClipboardRead:     true,
	MethodClipboardWrite:    true,
	MethodImeGetState:       true,
	MethodImeSetInputSource: true,
	MethodEventsSubscribe:   true,
	MethodEventsPoll:        true,
}

// ProtocolVersion is the wire protocol version advertised by handshake.
const ProtocolVersion = "1.0"
