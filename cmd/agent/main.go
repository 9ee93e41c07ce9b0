// Command agent runs the tool-using agent loop against a persistent session,
// either in-process or through a Temporal worker.
//
// Usage:
//
//	agent run "fix the failing test"           One turn on a new session
//	agent run --session s1                     Interactive turns on session s1
//	agent history s1                           Show what the model sees
//	agent session start --session s1 "hello"   Start a durable session
//	agent session send s1 "and now?"           Queue a turn and wait for it
package main

func main() {
	Execute()
}
