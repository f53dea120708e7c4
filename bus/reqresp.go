package bus

// CmdResult is the payload carried back on a command request's response
// slot: the device's line response, or the error that prevented one.
type CmdResult struct {
	Resp string
	Err  error
}

// cmdRequest is the single-shot request-response channel (component E)
// used between clients and the multiplexer. A requester sends a
// *cmdRequest and then receives on reply; the multiplexer (the only
// responder) either sends exactly one CmdResult and closes reply, or
// drops the request by closing reply without sending — the zero value
// read back with ok=false is the "None" case from spec.md §4.E.
type cmdRequest struct {
	targetAddr uint8
	cmd        string
	yield      bool // true: an explicit "yield my turn" marker, no reply expected
	reply      chan CmdResult
}

func newCmdRequest(addr uint8, cmd string) *cmdRequest {
	return &cmdRequest{targetAddr: addr, cmd: cmd, reply: make(chan CmdResult, 1)}
}

func (r *cmdRequest) addr() uint8 { return r.targetAddr }

func newYieldMarker() *cmdRequest {
	return &cmdRequest{yield: true}
}

// await resolves to (CmdResult, true) if the responder replied, or the
// zero value and false if the responder dropped the slot without
// replying (channel closed, nothing sent).
func (r *cmdRequest) await() (CmdResult, bool) {
	res, ok := <-r.reply
	return res, ok
}

func (r *cmdRequest) respond(res CmdResult) {
	r.reply <- res
	close(r.reply)
}

func (r *cmdRequest) drop() {
	close(r.reply)
}
