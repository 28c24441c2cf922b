package core

import "sync"

type EventContext struct {
	/** @brief Name of the subject of the event, such as an asset path. */
	Name string
	/** @brief Event specific counter. */
	Count uint32
	/** @brief Event specific payload. */
	Data interface{}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next tick.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// An asset was created, modified or removed.
	/* Context usage:
	 * Name = asset path, Data = assets.AssetEvent
	 */
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x02

	// A bind pass completed.
	/* Context usage:
	 * Count = unresolved variable elements, Data = *systems.BindingReport
	 */
	EVENT_CODE_RESOURCES_BOUND SystemEventCode = 0x03

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// State structure.
type eventSystemState struct {
	mu sync.RWMutex
	// Lookup table for event codes.
	registered map[SystemEventCode][]registeredEvent
}

/**
 * Event system internal state.
 */
var eventMu sync.Mutex
var eventState *eventSystemState = nil

func EventInitialize() bool {
	eventMu.Lock()
	defer eventMu.Unlock()
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
	return true
}

func EventShutdown() error {
	eventMu.Lock()
	defer eventMu.Unlock()
	eventState = nil
	return nil
}

func currentEventState() *eventSystemState {
	eventMu.Lock()
	defer eventMu.Unlock()
	return eventState
}

func validEventCode(code SystemEventCode) bool {
	return code >= 0 && code < MAX_MESSAGE_CODES
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @param onEvent The callback function to be invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	s := currentEventState()
	if s == nil || onEvent == nil || !validEventCode(code) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.registered[code] {
		if e.listener == listener {
			LogWarn("Listener already registered for event code %d", code)
			return false
		}
	}
	s.registered[code] = append(s.registered[code], registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 * @param code The event code to stop listening for.
 * @param listener The listener instance passed to EventRegister.
 * @returns TRUE if the event is successfully unregistered; otherwise false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	s := currentEventState()
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.registered[code]
	for i, e := range events {
		if e.listener == listener {
			s.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @param code The event code to fire.
 * @param sender The sender. Can be nil.
 * @param context The event data.
 * @returns TRUE if handled, otherwise FALSE.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	s := currentEventState()
	if s == nil {
		return false
	}
	s.mu.RLock()
	events := append([]registeredEvent(nil), s.registered[code]...)
	s.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
