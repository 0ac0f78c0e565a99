package classfile

import (
	"reflect"
	"testing"

	"github.com/daimatz/runevm/pkg/errors"
)

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc   string
		params []string
		ret    string
		slots  int
	}{
		{"()V", nil, "V", 0},
		{"(I)I", []string{"I"}, "I", 1},
		{"(II)I", []string{"I", "I"}, "I", 2},
		{"(JD)V", []string{"J", "D"}, "V", 4},
		{"([Ljava/lang/String;)V", []string{"[Ljava/lang/String;"}, "V", 1},
		{"(Ljava/lang/Object;[[IZ)Ljava/lang/String;", []string{"Ljava/lang/Object;", "[[I", "Z"}, "Ljava/lang/String;", 3},
		{"([J)[D", []string{"[J"}, "[D", 1},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			md, err := ParseMethodDescriptor(tt.desc)
			if err != nil {
				t.Fatalf("ParseMethodDescriptor: %v", err)
			}
			if !reflect.DeepEqual(md.Params, tt.params) {
				t.Errorf("params: got %v, want %v", md.Params, tt.params)
			}
			if md.Return != tt.ret {
				t.Errorf("return: got %q, want %q", md.Return, tt.ret)
			}
			if md.ArgCount() != len(tt.params) {
				t.Errorf("ArgCount: got %d, want %d", md.ArgCount(), len(tt.params))
			}
			if md.ArgSlots() != tt.slots {
				t.Errorf("ArgSlots: got %d, want %d", md.ArgSlots(), tt.slots)
			}
			if md.IsVoid() != (tt.ret == "V") {
				t.Errorf("IsVoid: got %v", md.IsVoid())
			}
		})
	}
}

func TestParseMethodDescriptorInvalid(t *testing.T) {
	for _, desc := range []string{"", "I", "(I", "(Q)V", "(L;)V", "(Ljava/lang/String)V", "(I)", "(I)VV", "([)V"} {
		t.Run(desc, func(t *testing.T) {
			if _, err := ParseMethodDescriptor(desc); !errors.Is(err, errors.ErrInvalidData) {
				t.Errorf("got %v, want ErrInvalidData", err)
			}
		})
	}
}
