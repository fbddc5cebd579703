// SPDX-License-Identifier: MPL-2.0

package kernel

// Output event kinds delivered to an OutputHook during Execute.
const (
	OutputStream        = "stream"
	OutputExecuteResult = "execute_result"
	OutputDisplayData   = "display_data"
	OutputError         = "error"
	OutputStatus        = "status"
)

type (
	// Output is a single iopub event produced while a cell runs.
	// Only the text/plain representation of rich data is carried;
	// nbrun is a terminal tool.
	Output struct {
		// Kind is one of the Output* constants.
		Kind string

		// Name is the stream name ("stdout" or "stderr") for stream output.
		Name string
		// Text is the stream text or the text/plain representation.
		Text string

		// Ename, Evalue, and Traceback describe an execution error.
		Ename     string
		Evalue    string
		Traceback []string

		// ExecutionState is "busy" or "idle" for status updates.
		ExecutionState string
	}

	// OutputHook receives outputs in arrival order while a cell executes.
	OutputHook func(Output)
)

// outputFromMessage maps an iopub message to an Output event.
// Messages nbrun does not report (execute_input, clear_output, rich
// display without text/plain) return ok=false.
func outputFromMessage(msg *Message) (Output, bool) {
	switch msg.Header.MsgType {
	case "stream":
		return Output{
			Kind: OutputStream,
			Name: str(msg.Content, "name"),
			Text: str(msg.Content, "text"),
		}, true

	case "execute_result", "display_data":
		data, _ := msg.Content["data"].(map[string]any)
		text, ok := data["text/plain"].(string)
		if !ok {
			return Output{}, false
		}
		kind := OutputExecuteResult
		if msg.Header.MsgType == "display_data" {
			kind = OutputDisplayData
		}
		return Output{Kind: kind, Text: text}, true

	case "error":
		out := Output{
			Kind:   OutputError,
			Ename:  str(msg.Content, "ename"),
			Evalue: str(msg.Content, "evalue"),
		}
		if tb, ok := msg.Content["traceback"].([]any); ok {
			for _, line := range tb {
				if s, ok := line.(string); ok {
					out.Traceback = append(out.Traceback, s)
				}
			}
		}
		return out, true

	case "status":
		return Output{
			Kind:           OutputStatus,
			ExecutionState: str(msg.Content, "execution_state"),
		}, true
	}

	return Output{}, false
}
