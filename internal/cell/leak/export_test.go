package leak

// ExitHook exposes the registered exit hook to the external tests.
var ExitHook = exitHook
