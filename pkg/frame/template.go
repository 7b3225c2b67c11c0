package frame

import (
	"fmt"
	"strings"

	"github.com/goburrow/modbus"
)

// DefaultAddress is the factory bus address of the Storion stack
const DefaultAddress byte = 0x55

// Kind identifies one of the fixed read requests
type Kind int

const (
	KindMeter Kind = iota + 1
	KindBattery
	KindInverter
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindMeter:
		return "meter"
	case KindBattery:
		return "battery"
	case KindInverter:
		return "inverter"
	case KindSystem:
		return "system"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "meter":
		return KindMeter, nil
	case "battery":
		return KindBattery, nil
	case "inverter":
		return KindInverter, nil
	case "system":
		return KindSystem, nil
	}
	return 0, fmt.Errorf("unknown request kind %q", s)
}

// Template is a 6-byte command; byte 0 is replaced by the bus address at send time
type Template [6]byte

func readHolding(start, count uint16) Template {
	return Template{
		DefaultAddress,
		modbus.FuncCodeReadHoldingRegisters,
		byte(start >> 8), byte(start),
		byte(count >> 8), byte(count),
	}
}

// Register blocks understood by the stack firmware. Reply lengths are 2*count+5.
var templates = map[Kind]Template{
	KindMeter:    readHolding(0x0000, 0x16), // 49-byte reply
	KindBattery:  readHolding(0x0100, 0x26), // 81-byte reply
	KindInverter: readHolding(0x0400, 0x30), // 101-byte reply
	KindSystem:   readHolding(0x0700, 0x06), // 17-byte reply
}

// TemplateFor returns the command template for kind
func TemplateFor(kind Kind) (Template, bool) {
	t, ok := templates[kind]
	return t, ok
}

// ReplyLength returns the expected reply length for a template
func (t Template) ReplyLength() int {
	count := int(t[4])<<8 | int(t[5])
	return count*2 + Overhead
}
