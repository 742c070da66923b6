// Command aivoryagent is a demo harness exercising the agent library end to
// end: a deep call chain throwing at the bottom, an argument-capture
// scenario, an instance-field capture scenario, and a non-breaking
// breakpoint hit — the Go analogue of original_source's TestApp.java.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aivorynet/agent-go/agent"
	"github.com/aivorynet/agent-go/capture"
)

type demoApp struct {
	instanceName    string
	instanceCounter int
	instanceList    []string
}

func newDemoApp() *demoApp {
	return &demoApp{
		instanceName:    "TestAppInstance",
		instanceCounter: 42,
		instanceList:    []string{"field1", "field2", "field3"},
	}
}

// userContext exercises nested opaque-object capture (§4.B step 7) as a
// field on demoApp's receiver.
type userContext struct {
	userID string
	email  string
	active bool
}

func (a *demoApp) triggerException(ag *agent.Agent, iteration int) {
	testVar := fmt.Sprintf("test-value-%d", iteration)

	method := capture.MethodDescriptor{
		DeclaringType: "demoApp",
		MethodName:    "triggerException",
		ParamNames:    []string{"iteration"},
	}
	args := []capture.Arg{{Value: iteration}}

	switch iteration {
	case 0:
		var nullStr *string
		defer func() {
			if r := recover(); r != nil {
				err := capture.Throw(fmt.Sprintf("nil pointer dereference: %v", r))
				ag.OnExceptionExit(err, a, method, args)
			}
		}()
		_ = *nullStr // panics; recovered and captured above.
	case 1:
		err := capture.Throw("Invalid argument: testVar=" + testVar)
		ag.OnExceptionExit(err, a, method, args)
	case 2:
		defer func() {
			if r := recover(); r != nil {
				err := capture.Throw(fmt.Sprintf("index out of range: %v", r))
				ag.OnExceptionExit(err, a, method, args)
			}
		}()
		arr := make([]int, 3)
		idx := 10
		arr[idx] = 1
	}
}

func (a *demoApp) level1(ag *agent.Agent) { a.level2(ag) }
func (a *demoApp) level2(ag *agent.Agent) { a.level3(ag) }
func (a *demoApp) level3(ag *agent.Agent) { a.level4(ag) }
func (a *demoApp) level4(ag *agent.Agent) { a.level5(ag) }
func (a *demoApp) level5(ag *agent.Agent) { a.level6(ag) }
func (a *demoApp) level6(ag *agent.Agent) { a.level7(ag) }
func (a *demoApp) level7(ag *agent.Agent) { a.level8(ag) }
func (a *demoApp) level8(ag *agent.Agent) { a.level9(ag) }
func (a *demoApp) level9(ag *agent.Agent) { a.level10(ag) }

func (a *demoApp) level10(ag *agent.Agent) {
	deepVar := "deep-level-10"
	depth := 10
	err := capture.Throw(fmt.Sprintf("deep exception at level %d, var=%s", depth, deepVar))
	ag.OnExceptionExit(err, a, capture.MethodDescriptor{DeclaringType: "demoApp", MethodName: "level10"}, nil)
}

// deepStructureDemo exercises §8 S3: a 500-element collection of 5000-char
// strings, clipped by the default max_collection_size/max_string_length.
func deepStructureDemo(ag *agent.Agent) {
	items := make([]string, 500)
	for i := range items {
		items[i] = fmt.Sprintf("%05000d", 0)
	}
	holder := struct{ Items []string }{Items: items}
	err := capture.Throw("deep structure capture demo")
	ag.OnExceptionExit(err, holder, capture.MethodDescriptor{DeclaringType: "demoApp", MethodName: "deepStructureDemo"}, nil)
}

func main() {
	apiKey := flag.String("api-key", os.Getenv("AIVORY_API_KEY"), "AIVory API key")
	backendURL := flag.String("backend-url", "", "backend WebSocket URL override")
	debug := flag.Bool("debug", false, "enable debug logging")
	diagAddr := flag.String("diagnostics-addr", ":9119", "local diagnostics HTTP address; empty disables it")
	flag.Parse()

	log.SetFlags(log.Ltime)

	agentArgs := fmt.Sprintf("apikey=%s", *apiKey)
	if *backendURL != "" {
		agentArgs += ",backendurl=" + *backendURL
	}
	if *debug {
		agentArgs += ",debug=true"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ag, err := agent.Start(ctx, agent.Options{
		AgentArgs:       agentArgs,
		DiagnosticsAddr: *diagAddr,
	})
	if err != nil {
		log.Fatalf("aivory: failed to start agent: %v", err)
	}
	defer ag.Stop()

	fmt.Println("===========================================")
	fmt.Println("AIVory Go Agent Demo Application")
	fmt.Println("===========================================")

	app := newDemoApp()

	for i := 0; i < 3; i++ {
		fmt.Printf("--- Test %d ---\n", i+1)
		app.triggerException(ag, i)
		time.Sleep(200 * time.Millisecond)
	}

	fmt.Println("--- Deep Stack Test ---")
	app.level1(ag)

	fmt.Println("--- Deep Structure Truncation Test ---")
	deepStructureDemo(ag)

	fmt.Println("--- Breakpoint Test ---")
	ag.Breakpoints.Set("bp1", "demoApp", 42, "")
	ag.OnBreakpointHit("demoApp", 42, app, nil)

	fmt.Println("\n===========================================")
	fmt.Println("Demo complete. Waiting for interrupt to exit.")
	fmt.Println("===========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("aivory: shutting down demo")
}
