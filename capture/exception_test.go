package capture

import (
	"errors"
	"testing"

	"github.com/aivorynet/agent-go/model"
)

type exceptionTestReceiver struct {
	InstanceName string
	counter      int
}

func TestBuildExceptionBasic(t *testing.T) {
	lim := DefaultLimits()
	err := Throw("boom")
	method := MethodDescriptor{DeclaringType: "widget.Service", MethodName: "Process", ParamNames: []string{"id"}}
	args := []Arg{{Value: 7}}
	receiver := exceptionTestReceiver{InstanceName: "svc-1", counter: 3}

	ec := BuildException(ExceptionInput{Err: err, Receiver: receiver, Method: method, Args: args}, lim)

	if ec.Message != "boom" {
		t.Fatalf("expected message %q, got %q", "boom", ec.Message)
	}
	if ec.ID == "" {
		t.Fatalf("expected non-empty ID")
	}
	if len(ec.Fingerprint) != 16 {
		t.Fatalf("expected 16-char fingerprint, got %q", ec.Fingerprint)
	}
	if len(ec.StackTrace) == 0 {
		t.Fatalf("expected a non-empty stack trace")
	}
	if ec.MethodArguments["id"] == nil || ec.MethodArguments["id"].Value != "7" {
		t.Fatalf("expected named arg 'id' captured, got %+v", ec.MethodArguments)
	}
	if got := ec.MethodArgumentOrder(); len(got) != 1 || got[0] != "id" {
		t.Fatalf("expected argument order [id], got %v", got)
	}
	if ec.LocalVariables["this.InstanceName"] == nil || ec.LocalVariables["this.InstanceName"].Value != "svc-1" {
		t.Fatalf("expected receiver field captured under this.InstanceName, got %+v", ec.LocalVariables)
	}
	if ec.LocalVariables["this.counter"] == nil || ec.LocalVariables["this.counter"].Value != "3" {
		t.Fatalf("expected unexported receiver field captured under this.counter, got %+v", ec.LocalVariables)
	}
}

func TestBuildExceptionArgFallsBackToPositionalName(t *testing.T) {
	ec := BuildException(ExceptionInput{
		Err:    Throw("x"),
		Method: MethodDescriptor{DeclaringType: "T", MethodName: "M"},
		Args:   []Arg{{Value: "a"}, {Value: "b"}},
	}, DefaultLimits())

	if ec.MethodArguments["arg0"] == nil || ec.MethodArguments["arg1"] == nil {
		t.Fatalf("expected positional fallback names arg0/arg1, got %+v", ec.MethodArguments)
	}
}

func TestFingerprintStableForSameShape(t *testing.T) {
	method := MethodDescriptor{DeclaringType: "widget.Service", MethodName: "Process"}
	frames := []model.StackFrame{
		{ClassName: "widget.Service", MethodName: "Process", LineNumber: 10},
	}
	err := errors.New("boom")

	fp1 := fingerprint(err, method, frames)
	fp2 := fingerprint(err, method, frames)
	if fp1 != fp2 {
		t.Fatalf("expected deterministic fingerprint, got %q vs %q", fp1, fp2)
	}

	otherFrames := []model.StackFrame{
		{ClassName: "widget.Service", MethodName: "Process", LineNumber: 99},
	}
	fp3 := fingerprint(err, method, otherFrames)
	if fp3 == fp1 {
		t.Fatalf("expected different line number to change the fingerprint")
	}
}

func TestFramesOfFallsBackWithoutThrowable(t *testing.T) {
	frames := framesOf(errors.New("plain error"))
	if len(frames) == 0 {
		t.Fatalf("expected fallback stack capture for a plain error")
	}
}

func TestFramesOfUsesAttachedTrace(t *testing.T) {
	traced := Throw("traced")
	frames := framesOf(traced)
	if len(frames) == 0 {
		t.Fatalf("expected attached trace frames")
	}
}
