package protocol

import "encoding/json"

// Request is a JSON-RPC 2.0 request or notification. A request with a nil
// ID is a notification: the server dispatches it but never writes a
// response frame.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request with an id, serialising params with
// json.Marshal.
func NewRequest(id ID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a request with no id; the server never replies to
// it.
func NewNotification(method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// IsNotification reports whether this request expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Response is a JSON-RPC 2.0 response. Exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// SuccessResponse builds a response carrying a result, serialised with
// json.Marshal. A nil/unit result is encoded as {"success": true}.
func SuccessResponse(id ID, result any) (*Response, error) {
	if result == nil {
		result = map[string]bool{"success": true}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// ErrorResponse builds a response carrying an error.
func ErrorResponse(id ID, code int, message string, data any) *Response {
	resp := &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			resp.Error.Data = raw
		}
	}
	return resp
}

// --- Method parameter / result types ---
//
// Field names and shapes mirror the original implementation's
// crux-protocol/src/rpc.rs exactly so that the wire contract is unaffected
// by the reimplementation language.

type HandshakeParams struct {
	ClientName      string   `json:"client_name"`
	ClientVersion   string   `json:"client_version"`
	ProtocolVersion string   `json:"protocol_version"`
	Capabilities    []string `json:"capabilities"`
}

type HandshakeResult struct {
	ServerName             string   `json:"server_name"`
	ServerVersion           string   `json:"server_version"`
	ProtocolVersion         string   `json:"protocol_version"`
	SupportedCapabilities   []string `json:"supported_capabilities"`
}

type SplitPaneParams struct {
	TargetPaneID *PaneID           `json:"target_pane_id,omitempty"`
	Direction    SplitDirection    `json:"direction"`
	Size         *SplitSize        `json:"size,omitempty"`
	Cwd          *string           `json:"cwd,omitempty"`
	Command      []string          `json:"command,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}

type SplitPaneResult struct {
	PaneID   PaneID   `json:"pane_id"`
	WindowID WindowID `json:"window_id"`
	TabID    TabID    `json:"tab_id"`
	Size     PaneSize `json:"size"`
	TTY      *string  `json:"tty,omitempty"`
}

type SendTextParams struct {
	PaneID         *PaneID `json:"pane_id,omitempty"`
	Text           string  `json:"text"`
	BracketedPaste bool    `json:"bracketed_paste,omitempty"`
}

type SendTextResult struct {
	BytesWritten int `json:"bytes_written"`
}

type GetTextParams struct {
	PaneID         *PaneID `json:"pane_id,omitempty"`
	StartLine      *int32  `json:"start_line,omitempty"`
	EndLine        *int32  `json:"end_line,omitempty"`
	IncludeEscapes bool    `json:"include_escapes,omitempty"`
}

type GetTextResult struct {
	Lines     []string `json:"lines"`
	FirstLine int32    `json:"first_line"`
	CursorRow uint32   `json:"cursor_row"`
	CursorCol uint32   `json:"cursor_col"`
}

type GetSelectionParams struct {
	PaneID *PaneID `json:"pane_id,omitempty"`
}

type GetSelectionResult struct {
	Text         *string `json:"text,omitempty"`
	HasSelection bool    `json:"has_selection"`
}

type GetSnapshotParams struct {
	PaneID *PaneID `json:"pane_id,omitempty"`
}

type GetSnapshotResult struct {
	Lines         []string `json:"lines"`
	Rows          uint32   `json:"rows"`
	Cols          uint32   `json:"cols"`
	CursorRow     int32    `json:"cursor_row"`
	CursorCol     uint32   `json:"cursor_col"`
	CursorShape   string   `json:"cursor_shape"`
	DisplayOffset uint32   `json:"display_offset"`
	HasSelection  bool     `json:"has_selection"`
	Title         *string  `json:"title,omitempty"`
	Cwd           *string  `json:"cwd,omitempty"`
}

type ListPanesResult struct {
	Panes []PaneInfo `json:"panes"`
}

type ResizePaneParams struct {
	PaneID PaneID   `json:"pane_id"`
	Width  *float32 `json:"width,omitempty"`
	Height *float32 `json:"height,omitempty"`
}

type ActivatePaneParams struct {
	PaneID PaneID `json:"pane_id"`
}

type ClosePaneParams struct {
	PaneID PaneID `json:"pane_id"`
	Force  bool   `json:"force,omitempty"`
}

type WindowCreateParams struct {
	Title  *string `json:"title,omitempty"`
	Width  *uint32 `json:"width,omitempty"`
	Height *uint32 `json:"height,omitempty"`
}

type WindowCreateResult struct {
	WindowID WindowID `json:"window_id"`
}

type WindowInfo struct {
	WindowID  WindowID `json:"window_id"`
	Title     string   `json:"title"`
	PaneCount uint32   `json:"pane_count"`
	IsFocused bool     `json:"is_focused"`
}

type WindowListResult struct {
	Windows []WindowInfo `json:"windows"`
}

type SessionSaveParams struct {
	Path *string `json:"path,omitempty"`
}

type SessionSaveResult struct {
	Path string `json:"path"`
}

type SessionLoadParams struct {
	Path *string `json:"path,omitempty"`
}

type SessionLoadResult struct {
	PaneCount uint32 `json:"pane_count"`
}

// ClipboardContentType selects the shape of a clipboard read/write.
type ClipboardContentType string

const (
	ClipboardText  ClipboardContentType = "text"
	ClipboardImage ClipboardContentType = "image"
	ClipboardAuto  ClipboardContentType = "auto"
)

type ClipboardReadParams struct {
	ContentType ClipboardContentType `json:"content_type,omitempty"`
}

// ClipboardReadResult is a tagged union keyed by ContentType: exactly one of
// Text/ImagePath/HTML/FilePaths is populated depending on ContentType.
type ClipboardReadResult struct {
	ContentType string   `json:"content_type"`
	Text        string   `json:"text,omitempty"`
	ImagePath   string   `json:"image,omitempty"`
	HTML        string   `json:"html,omitempty"`
	FilePaths   []string `json:"file_paths,omitempty"`
}

type ClipboardWriteParams struct {
	ContentType ClipboardContentType `json:"content_type"`
	Text        *string              `json:"text,omitempty"`
	ImagePath   *string              `json:"image_path,omitempty"`
}

type ImeStateResult struct {
	Composing    bool    `json:"composing"`
	PreeditText  *string `json:"preedit_text,omitempty"`
	InputSource  *string `json:"input_source,omitempty"`
}

type ImeSetInputSourceParams struct {
	InputSource string `json:"input_source"`
}

type EventsSubscribeParams struct {
	Events []PaneEventType `json:"events,omitempty"`
}

type EventsPollParams struct {
	PaneID *PaneID `json:"pane_id,omitempty"`
}

type EventsPollResult struct {
	Events []PaneEvent `json:"events"`
}
