package engine

// event is anything the actor goroutine consumes from its inbox.
type event interface{}

type cmdConnect struct{}

type cmdSubscribe struct{ symbols []string }

type cmdUnsubscribe struct{ symbols []string }

type cmdDisconnect struct{}

type cmdSendText struct{ text string }

// Internal events carry the epoch of the attempt that produced them.
type evDialed struct {
	epoch  uint64
	connID string
	conn   Conn
	err    error
}

type evReadyTimer struct{ epoch uint64 }

type evPingTimer struct{ epoch uint64 }

type evReconnectTimer struct{ epoch uint64 }

type evFrame struct {
	epoch       uint64
	messageType int
	data        []byte
}

type evReadFailed struct {
	epoch  uint64
	connID string
	err    error
}

type evSendFailed struct {
	epoch   uint64
	op      string
	symbols []string
	err     error
}
