package lightwaverf

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MessageLen is the number of bytes in a LightwaveRF message.
const MessageLen = 10

// Sentinel is the expected value of byte 0.
const Sentinel byte = 0xF6

// Byte offsets within a message.
const (
	offsetState    = 0
	offsetSwitch   = 2
	offsetFunction = 3
	offsetRemote   = 4
)

// Message is a raw LightwaveRF message.
type Message [MessageLen]byte

// RemoteIDLen is the size of a transmitter identity.
const RemoteIDLen = 6

// RemoteID identifies a transmitter. It is compared byte for byte.
type RemoteID [RemoteIDLen]byte

// ParseRemoteID parses a 12-digit hex string such as "010203040506".
// Colons and dashes between bytes are accepted.
func ParseRemoteID(s string) (RemoteID, error) {
	var id RemoteID

	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	if len(clean) != RemoteIDLen*2 {
		return id, fmt.Errorf("%w: %q", ErrInvalidRemoteID, s)
	}
	if _, err := hex.Decode(id[:], []byte(clean)); err != nil {
		return id, fmt.Errorf("%w: %q: %w", ErrInvalidRemoteID, s, err)
	}
	return id, nil
}

// String returns the identity as lower-case hex.
func (id RemoteID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText encodes the identity as hex so it reads as a string in JSON.
func (id RemoteID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText accepts anything ParseRemoteID does.
func (id *RemoteID) UnmarshalText(text []byte) error {
	parsed, err := ParseRemoteID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// StateCode is the two-byte state or dim code in bytes 0 and 1.
// The low byte travels first, so byte 0 carries the sentinel for
// codes such as DimLevel0 (0xBDF6).
type StateCode uint16

// Command is the function byte (byte 3).
type Command byte

// Function codes.
const (
	CommandOff Command = 0xF6
	CommandOn  Command = 0xEE
	Mood0      Command = 0xBD
	Mood1      Command = 0xBB
	Mood2      Command = 0xB7
	Mood3      Command = 0x7E
	Mood4      Command = 0x6F
)

var moods = [...]Command{Mood0, Mood1, Mood2, Mood3, Mood4}

// MoodCommand returns the command for mood index 0..4.
func MoodCommand(index int) (Command, error) {
	if index < 0 || index >= len(moods) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMood, index)
	}
	return moods[index], nil
}

// Mood returns the mood index for c, or false if c is not a mood command.
func (c Command) Mood() (int, bool) {
	for i, m := range moods {
		if m == c {
			return i, true
		}
	}
	return 0, false
}

// String returns the command name used on MQTT.
func (c Command) String() string {
	switch c {
	case CommandOff:
		return "off"
	case CommandOn:
		return "on"
	}
	if i, ok := c.Mood(); ok {
		return fmt.Sprintf("mood_%d", i)
	}
	return fmt.Sprintf("0x%02x", byte(c))
}

// DimLevels maps dim level 0..31 to its state code.
var DimLevels = [...]StateCode{
	0xBDF6, 0xBDEE, 0xBDED, 0xBDEB, 0xBDDE, 0xBDDD, 0xBDDB, 0xBDBE,
	0xBDBD, 0xBDBB, 0xBDB7, 0xBD7E, 0xBD7D, 0xBD7B, 0xBD77, 0xBD6F,
	0xBBF6, 0xBBEE, 0xBBED, 0xBBEB, 0xBBDE, 0xBBDD, 0xBBDB, 0xBBBE,
	0xBBBD, 0xBBBB, 0xBBB7, 0xBB7E, 0xBB7D, 0xBB7B, 0xBB77, 0xBB6F,
}

// StateFullOn is the state code used for plain on/off and mood commands.
const StateFullOn StateCode = 0xF6F6

// DimState returns the state code for dim level 0..31.
func DimState(level int) (StateCode, error) {
	if level < 0 || level >= len(DimLevels) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDimLevel, level)
	}
	return DimLevels[level], nil
}

// DimLevel returns the dim level of a state code, or false if the code
// is not in the dim table.
func (s StateCode) DimLevel() (int, bool) {
	for i, code := range DimLevels {
		if code == s {
			return i, true
		}
	}
	return 0, false
}

// nibbles is the 4-bit to line-symbol table. Each symbol has exactly two
// zero bits, never adjacent.
var nibbles = [16]byte{
	0xF6, 0xEE, 0xED, 0xEB, 0xDE, 0xDD, 0xDB, 0xBE,
	0xBD, 0xBB, 0xB7, 0x7E, 0x7D, 0x7B, 0x77, 0x6F,
}

// EncodeNibble returns the line symbol for a value 0..15.
func EncodeNibble(n byte) (byte, error) {
	if int(n) >= len(nibbles) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, n)
	}
	return nibbles[n], nil
}

// DecodeNibble is the inverse of EncodeNibble.
func DecodeNibble(symbol byte) (byte, bool) {
	for i, s := range nibbles {
		if s == symbol {
			return byte(i), true
		}
	}
	return 0, false
}

// NewMessage builds an outgoing message. channel is a nibble (0..15) and
// is sent through the symbol table; state, command and remote are sent as
// given.
func NewMessage(state StateCode, channel byte, command Command, remote RemoteID) (Message, error) {
	var m Message

	symbol, err := EncodeNibble(channel)
	if err != nil {
		return m, err
	}

	m[offsetState] = byte(state)
	m[offsetState+1] = byte(state >> 8)
	m[offsetSwitch] = symbol
	m[offsetFunction] = byte(command)
	copy(m[offsetRemote:], remote[:])
	return m, nil
}

// State returns the state code in bytes 0 and 1.
func (m Message) State() StateCode {
	return StateCode(m[offsetState]) | StateCode(m[offsetState+1])<<8
}

// SwitchID returns the raw switch/channel byte.
func (m Message) SwitchID() byte {
	return m[offsetSwitch]
}

// Channel decodes the switch byte through the symbol table.
func (m Message) Channel() (byte, bool) {
	return DecodeNibble(m[offsetSwitch])
}

// Command returns the function byte.
func (m Message) Command() Command {
	return Command(m[offsetFunction])
}

// Remote returns the transmitter identity in bytes 4..9.
func (m Message) Remote() RemoteID {
	var id RemoteID
	copy(id[:], m[offsetRemote:])
	return id
}

// String returns the message as hex.
func (m Message) String() string {
	return hex.EncodeToString(m[:])
}
