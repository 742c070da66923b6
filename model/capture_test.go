package model

import "testing"

func TestSourceAvailable(t *testing.T) {
	cases := []struct {
		name string
		f    StackFrame
		want bool
	}{
		{"normal frame", StackFrame{FileName: "agent.go", IsNative: false}, true},
		{"native frame", StackFrame{FileName: "agent.go", IsNative: true}, false},
		{"no file name", StackFrame{FileName: "", IsNative: false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.SourceAvailable(); got != tc.want {
				t.Fatalf("SourceAvailable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExceptionCaptureMethodArgumentOrder(t *testing.T) {
	ec := &ExceptionCapture{MethodArguments: map[string]*CapturedValue{}}
	if got := ec.MethodArgumentOrder(); got != nil {
		t.Fatalf("expected nil order before SetMethodArgumentOrder, got %v", got)
	}
	ec.SetMethodArgumentOrder([]string{"b", "a"})
	if got := ec.MethodArgumentOrder(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("unexpected order: %v", got)
	}
}
