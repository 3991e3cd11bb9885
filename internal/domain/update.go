package domain

// Update is published to observers after every change of connection state,
// error, or prices. Observers receive values, never shared mutable state.
type Update struct {
	State        ConnectionState
	Prices       PriceSnapshot
	Err          error
	Reconnecting bool            // A reconnect attempt is scheduled
	Message      *InboundMessage // Set for chat frames and provider errors
}

// Phase folds the reconnect flag into the state: a disconnected client with
// a reconnect scheduled reports StateReconnecting.
func (u Update) Phase() ConnectionState {
	if u.State == StateDisconnected && u.Reconnecting {
		return StateReconnecting
	}
	return u.State
}
