package capture

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aivorynet/agent-go/model"
)

// BuildNativeException builds an ExceptionCapture from the native subagent
// collaborator's callback (§6): location names the method where the
// exception occurred, variablesJSON is a JSON object whose top-level keys
// either name global variables for the capture or follow the convention
// "frame_<i>_<class>.<method>" for per-frame locals. Parsing is opaque and
// best-effort: a malformed or empty payload yields an otherwise-complete
// capture with no local variables, mirroring JVMTICallback.parseVariablesJson's
// graceful degradation to an empty map.
func BuildNativeException(err error, location string, variablesJSON string, lim Limits) *model.ExceptionCapture {
	ec := BuildException(ExceptionInput{
		Err:    err,
		Method: MethodDescriptor{DeclaringType: location},
	}, lim)

	globals, frameGroups := parseNativeVariables(variablesJSON, lim)
	for k, v := range globals {
		ec.LocalVariables[k] = v
	}

	for i := range ec.StackTrace {
		key := fmt.Sprintf("frame_%d_%s.%s", i, ec.StackTrace[i].ClassName, ec.StackTrace[i].MethodName)
		if locals, ok := frameGroups[key]; ok {
			ec.StackTrace[i].LocalVariables = locals
		}
	}

	return ec
}

// parseNativeVariables decodes the JVMTI-style variables JSON into a flat
// map of global entries plus a map of per-frame groups, keyed exactly as
// they appear in the source payload.
func parseNativeVariables(raw string, lim Limits) (globals map[string]*model.CapturedValue, frameGroups map[string]map[string]*model.CapturedValue) {
	globals = map[string]*model.CapturedValue{}
	frameGroups = map[string]map[string]*model.CapturedValue{}

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return globals, frameGroups
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]*model.CapturedValue{}, map[string]map[string]*model.CapturedValue{}
	}

	for key, val := range decoded {
		if strings.HasPrefix(key, "frame_") {
			group, ok := val.(map[string]interface{})
			if !ok {
				continue
			}
			children := make(map[string]*model.CapturedValue, len(group))
			for name, v := range group {
				children[name] = Value(name, v, 0, lim)
			}
			frameGroups[key] = children
			continue
		}
		globals[key] = Value(key, val, 0, lim)
	}

	return globals, frameGroups
}
