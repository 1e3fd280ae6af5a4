package graphics

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// KittyAction is the action requested by a Kitty graphics command.
type KittyAction int

const (
	KittyTransmit KittyAction = iota
	KittyTransmitAndDisplay
	KittyDisplay
	KittyDelete
	KittyQuery
	KittyAnimationFrame
)

// Compression is the compression applied to a Kitty command's payload.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZlib
)

// DeleteKind selects which DeleteTarget variant is populated.
type DeleteKind int

const (
	DeleteAll DeleteKind = iota
	DeleteByID
	DeleteByPlacement
	DeleteAtCursor
	DeleteInRange
)

// DeleteTarget specifies what a Delete command should remove.
type DeleteTarget struct {
	Kind        DeleteKind
	ImageID     ImageID
	PlacementID uint32
	Column      uint32
	Row         int32
}

// KittyCommand is a parsed Kitty graphics protocol command, covering every
// key the protocol defines whether or not this implementation acts on it.
type KittyCommand struct {
	Action         KittyAction
	ImageID        uint32
	PlacementID    uint32
	Width          uint32
	Height         uint32
	Format         PixelFormat
	Transmission   TransmissionMode
	Compression    Compression
	MoreData       bool
	DisplayColumns uint32
	DisplayRows    uint32
	SourceX        uint32
	SourceY        uint32
	SourceWidth    uint32
	SourceHeight   uint32
	ZIndex         int32
	Payload        []byte
	Quiet          uint8
	DeleteTarget   *DeleteTarget
}

func defaultKittyCommand() KittyCommand {
	return KittyCommand{Action: KittyTransmit, Format: PixelRGBA, Transmission: TransmissionDirect}
}

// DecodePayload base64-decodes the command's raw payload bytes.
func (c *KittyCommand) DecodePayload() ([]byte, error) {
	if len(c.Payload) == 0 {
		return nil, nil
	}
	out, err := base64.StdEncoding.DecodeString(string(c.Payload))
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return out, nil
}

// ParseKittyCommand parses the bytes between "ESC _ G" and the closing
// string terminator of a Kitty graphics APC sequence. input is the raw
// "key=value,key=value,...;base64data" content.
func ParseKittyCommand(input []byte) (KittyCommand, error) {
	s := string(input)
	cmd := defaultKittyCommand()

	paramsStr, payloadStr, hasPayload := strings.Cut(s, ";")
	if hasPayload && payloadStr != "" {
		cmd.Payload = []byte(payloadStr)
	}

	var deleteSpecifier byte
	var deleteValue string
	hasDeleteSpecifier := false
	hasActionKey := false

	for _, pair := range strings.Split(paramsStr, ",") {
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return KittyCommand{}, &ParseError{Msg: fmt.Sprintf("invalid key-value pair: %s", pair)}
		}

		switch key {
		case "a":
			hasActionKey = true
			switch value {
			case "t":
				cmd.Action = KittyTransmit
			case "T", "p", "P":
				cmd.Action = KittyTransmitAndDisplay
			case "d", "D":
				cmd.Action = KittyDelete
			case "q", "Q":
				cmd.Action = KittyQuery
			case "f", "F":
				cmd.Action = KittyAnimationFrame
			default:
				cmd.Action = KittyTransmitAndDisplay
			}
		case "i":
			v, err := parseU32(value, "image id")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.ImageID = v
		case "p":
			v, err := parseU32(value, "placement id")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.PlacementID = v
		case "f":
			switch value {
			case "24":
				cmd.Format = PixelRGB
			case "32":
				cmd.Format = PixelRGBA
			case "100":
				cmd.Format = PixelPNG
			default:
				return KittyCommand{}, &ParseError{Msg: fmt.Sprintf("unsupported format: %s", value)}
			}
		case "t":
			switch value {
			case "d", "D":
				cmd.Transmission = TransmissionDirect
			case "f", "F":
				cmd.Transmission = TransmissionFile
			case "t", "T":
				cmd.Transmission = TransmissionTempFile
			case "s", "S":
				cmd.Transmission = TransmissionSharedMemory
			default:
				cmd.Transmission = TransmissionDirect
			}
		case "s":
			v, err := parseU32(value, "width")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.Width = v
		case "v":
			v, err := parseU32(value, "height")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.Height = v
		case "o":
			if value == "z" {
				cmd.Compression = CompressionZlib
			} else {
				cmd.Compression = CompressionNone
			}
		case "m":
			cmd.MoreData = value == "1"
		case "c":
			v, err := parseU32(value, "display columns")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.DisplayColumns = v
		case "r":
			v, err := parseU32(value, "display rows")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.DisplayRows = v
		case "x":
			v, err := parseU32(value, "source x")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.SourceX = v
		case "y":
			v, err := parseU32(value, "source y")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.SourceY = v
		case "w":
			v, err := parseU32(value, "source width")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.SourceWidth = v
		case "h":
			v, err := parseU32(value, "source height")
			if err != nil {
				return KittyCommand{}, err
			}
			cmd.SourceHeight = v
		case "z":
			v, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return KittyCommand{}, &ParseError{Msg: fmt.Sprintf("invalid z-index: %v", err)}
			}
			cmd.ZIndex = int32(v)
		case "q":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return KittyCommand{}, &ParseError{Msg: fmt.Sprintf("invalid quiet: %v", err)}
			}
			cmd.Quiet = uint8(v)
		case "d":
			if value != "" {
				deleteSpecifier = value[0]
				hasDeleteSpecifier = true
				if len(value) > 1 {
					deleteValue = value[1:]
				}
			}
		default:
			slog.Debug("ignoring unknown kitty graphics key", "key", key, "value", value)
		}
	}

	if cmd.Action == KittyDelete {
		cmd.DeleteTarget = resolveDeleteTarget(hasDeleteSpecifier, deleteSpecifier, deleteValue, cmd)
	}

	// Kitty protocol default: no 'a' key with a payload present means
	// TransmitAndDisplay.
	if !hasActionKey && len(cmd.Payload) > 0 {
		cmd.Action = KittyTransmitAndDisplay
	}

	return cmd, nil
}

func resolveDeleteTarget(has bool, specifier byte, value string, cmd KittyCommand) *DeleteTarget {
	if !has {
		return &DeleteTarget{Kind: DeleteAll}
	}
	switch specifier {
	case 'a', 'A':
		return &DeleteTarget{Kind: DeleteAll}
	case 'i', 'I':
		if cmd.ImageID > 0 {
			if cmd.PlacementID > 0 {
				return &DeleteTarget{Kind: DeleteByPlacement, ImageID: ImageID(cmd.ImageID), PlacementID: cmd.PlacementID}
			}
			return &DeleteTarget{Kind: DeleteByID, ImageID: ImageID(cmd.ImageID)}
		}
		return &DeleteTarget{Kind: DeleteAll}
	case 'c', 'C':
		return &DeleteTarget{Kind: DeleteAtCursor}
	case 'p', 'P':
		col, _ := strconv.ParseUint(value, 10, 32)
		// Row is always 0 here: the delete-in-range form only ever
		// carries a column value on the wire.
		return &DeleteTarget{Kind: DeleteInRange, Column: uint32(col), Row: 0}
	default:
		return &DeleteTarget{Kind: DeleteAll}
	}
}

func parseU32(value, context string) (uint32, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, &ParseError{Msg: fmt.Sprintf("invalid %s: %v", context, err)}
	}
	return uint32(v), nil
}
