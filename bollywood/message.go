package bollywood

// Message is a deferred, zero-argument call. Application code curries
// its arguments at enqueue time (typically a closure over method
// receiver and parameters) rather than the runtime understanding any
// envelope or payload shape. Messages are opaque and cannot be
// cancelled individually once enqueued - only ClearAllMessages or
// actor teardown removes them.
type Message func()
