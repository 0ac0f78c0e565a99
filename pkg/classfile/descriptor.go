package classfile

import (
	"strings"

	"github.com/daimatz/runevm/pkg/errors"
)

// MethodDescriptor is a parsed method descriptor such as "(IJ[Ljava/lang/String;)V".
type MethodDescriptor struct {
	Params []string // field descriptors, in order
	Return string   // field descriptor, or "V"
}

// ParseMethodDescriptor splits a method descriptor into its parameter and
// return types.
func ParseMethodDescriptor(descriptor string) (*MethodDescriptor, error) {
	if !strings.HasPrefix(descriptor, "(") {
		return nil, invalidDescriptor(descriptor)
	}
	end := strings.IndexByte(descriptor, ')')
	if end == -1 {
		return nil, invalidDescriptor(descriptor)
	}

	md := &MethodDescriptor{}
	params := descriptor[1:end]
	for len(params) > 0 {
		n := fieldTypeLen(params)
		if n == 0 {
			return nil, invalidDescriptor(descriptor)
		}
		md.Params = append(md.Params, params[:n])
		params = params[n:]
	}

	ret := descriptor[end+1:]
	if ret != "V" && (ret == "" || fieldTypeLen(ret) != len(ret)) {
		return nil, invalidDescriptor(descriptor)
	}
	md.Return = ret
	return md, nil
}

func invalidDescriptor(descriptor string) error {
	return errors.InvalidData(errors.PhaseLoad, -1, "invalid method descriptor %q", descriptor)
}

// fieldTypeLen returns the length of the field descriptor at the start of
// s, or 0 if there is none.
func fieldTypeLen(s string) int {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1
	case 'L':
		semi := strings.IndexByte(s[i:], ';')
		if semi <= 1 {
			return 0
		}
		return i + semi + 1
	}
	return 0
}

// ArgCount returns the number of declared parameters.
func (md *MethodDescriptor) ArgCount() int {
	return len(md.Params)
}

// ArgSlots returns the number of local slots the parameters occupy; long
// and double take two.
func (md *MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range md.Params {
		n += SlotSize(p)
	}
	return n
}

// IsVoid reports whether the method returns nothing.
func (md *MethodDescriptor) IsVoid() bool {
	return md.Return == "V"
}

// SlotSize returns 2 for long and double descriptors and 1 otherwise.
func SlotSize(fieldDescriptor string) int {
	if fieldDescriptor == "J" || fieldDescriptor == "D" {
		return 2
	}
	return 1
}
